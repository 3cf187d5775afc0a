//go:build ignore

// Package main writes synthetic Snowplow run objects into a local blob root.
// Usage: go run scripts/generate-events.go -root ./data/blobs -runs 24 -events 500
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/Aman-CERP/eventindexer/internal/blob"
	"github.com/Aman-CERP/eventindexer/internal/partition"
	"github.com/Aman-CERP/eventindexer/internal/schema"
)

var (
	root     = flag.String("root", "./data/blobs", "Blob root directory")
	bucket   = flag.String("bucket", "events", "Bucket to write into")
	runs     = flag.Int("runs", 24, "Number of runs to generate")
	events   = flag.Int("events", 500, "Events per run")
	spacing  = flag.Duration("spacing", time.Hour, "Time between consecutive runs")
	plain    = flag.Bool("plain", false, "Write uncompressed objects")
	seed     = flag.Int64("seed", 42, "Random seed for reproducibility")
	appIDs   = []string{"web", "ios", "android", "backend"}
	eventsTy = []string{"page_view", "struct", "unstruct", "transaction"}
)

func main() {
	flag.Parse()

	store, err := blob.NewFileStore(*root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open blob root: %v\n", err)
		os.Exit(1)
	}

	rng := rand.New(rand.NewSource(*seed))
	fields := schema.Snowplow().Fields()
	now := time.Now().UTC().Truncate(time.Second)

	namer := partition.NewNamer("", -1)
	for i := 0; i < *runs; i++ {
		started := now.Add(-time.Duration(i) * *spacing)
		key := fmt.Sprintf("logs/enriched/good/run=%s/part-00000",
			started.Format(partition.TimestampLayout))
		if !*plain {
			key += ".gz"
		}

		var body bytes.Buffer
		for j := 0; j < *events; j++ {
			body.WriteString(eventLine(rng, fields, started.Add(time.Duration(j)*time.Millisecond)))
			body.WriteByte('\n')
		}

		data := body.Bytes()
		if !*plain {
			var zbuf bytes.Buffer
			zw := gzip.NewWriter(&zbuf)
			if _, err := zw.Write(data); err != nil {
				fmt.Fprintf(os.Stderr, "compress %s: %v\n", key, err)
				os.Exit(1)
			}
			if err := zw.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "compress %s: %v\n", key, err)
				os.Exit(1)
			}
			data = zbuf.Bytes()
		}

		if err := store.Put(context.Background(), *bucket, key, bytes.NewReader(data)); err != nil {
			fmt.Fprintf(os.Stderr, "write %s: %v\n", key, err)
			os.Exit(1)
		}
		fmt.Printf("  %s -> %s\n", key, namer.Format(started))
	}

	fmt.Printf("Generated %d runs of %d events in %s/%s\n", *runs, *events, *root, *bucket)
}

func eventLine(rng *rand.Rand, fields []string, ts time.Time) string {
	tokens := make([]string, len(fields))
	for i, f := range fields {
		switch {
		case f == "app_id":
			tokens[i] = appIDs[rng.Intn(len(appIDs))]
		case f == "event":
			tokens[i] = eventsTy[rng.Intn(len(eventsTy))]
		case f == "event_id" || strings.HasSuffix(f, "userid") || strings.HasSuffix(f, "_id"):
			tokens[i] = uuid.NewString()
		case f == "user_ipaddress":
			tokens[i] = fmt.Sprintf("10.%d.%d.%d", rng.Intn(256), rng.Intn(256), rng.Intn(256))
		case strings.HasSuffix(f, "_tstamp"):
			tokens[i] = ts.Format("2006-01-02 15:04:05.000")
		default:
			// Most Snowplow columns are sparse.
			if rng.Intn(4) == 0 {
				tokens[i] = fmt.Sprintf("%s-%d", f, rng.Intn(100))
			}
		}
	}
	return strings.Join(tokens, "\t")
}
