package schema

// snowplowColumns is the column order of the Snowplow enriched event TSV format.
var snowplowColumns = [...]string{
	// Application and platform
	"app_id",
	"platform",

	// Date/time
	"etl_tstamp",
	"collector_tstamp",
	"dvce_created_tstamp",

	// Event
	"event",
	"event_id",
	"txn_id",

	// Versioning
	"name_tracker",
	"v_tracker",
	"v_collector",
	"v_etl",

	// User and visit
	"user_id",
	"user_ipaddress",
	"user_fingerprint",
	"domain_userid",
	"domain_sessionidx",
	"network_userid",

	// Location
	"geo_country",
	"geo_region",
	"geo_city",
	"geo_zipcode",
	"geo_latitude",
	"geo_longitude",
	"geo_region_name",

	// IP lookups
	"ip_isp",
	"ip_organization",
	"ip_domain",
	"ip_netspeed",

	// Page
	"page_url",
	"page_title",
	"page_referrer",

	// Page URL components
	"page_urlscheme",
	"page_urlhost",
	"page_urlport",
	"page_urlpath",
	"page_urlquery",
	"page_urlfragment",

	// Referrer URL components
	"refr_urlscheme",
	"refr_urlhost",
	"refr_urlport",
	"refr_urlpath",
	"refr_urlquery",
	"refr_urlfragment",

	// Referrer details
	"refr_medium",
	"refr_source",
	"refr_term",

	// Marketing
	"mkt_medium",
	"mkt_source",
	"mkt_term",
	"mkt_content",
	"mkt_campaign",

	"contexts",

	// Structured event
	"se_category",
	"se_action",
	"se_label",
	"se_property",
	"se_value",

	"unstruct_event",

	// Ecommerce transaction
	"tr_orderid",
	"tr_affiliation",
	"tr_total",
	"tr_tax",
	"tr_shipping",
	"tr_city",
	"tr_state",
	"tr_country",

	// Ecommerce transaction item
	"ti_orderid",
	"ti_sku",
	"ti_name",
	"ti_category",
	"ti_price",
	"ti_quantity",

	// Page pings
	"pp_xoffset_min",
	"pp_xoffset_max",
	"pp_yoffset_min",
	"pp_yoffset_max",

	"useragent",

	// Browser
	"br_name",
	"br_family",
	"br_version",
	"br_type",
	"br_renderengine",
	"br_lang",
	"br_features_pdf",
	"br_features_flash",
	"br_features_java",
	"br_features_director",
	"br_features_quicktime",
	"br_features_realplayer",
	"br_features_windowsmedia",
	"br_features_gears",
	"br_features_silverlight",
	"br_cookies",
	"br_colordepth",
	"br_viewwidth",
	"br_viewheight",

	// OS
	"os_name",
	"os_family",
	"os_manufacturer",
	"os_timezone",

	// Device
	"dvce_type",
	"dvce_ismobile",
	"dvce_screenwidth",
	"dvce_screenheight",

	// Document
	"doc_charset",
	"doc_width",
	"doc_height",

	// Currency
	"tr_currency",
	"tr_total_base",
	"tr_tax_base",
	"tr_shipping_base",
	"ti_currency",
	"ti_price_base",
	"base_currency",

	"geo_timezone",

	// Click ID
	"mkt_clickid",
	"mkt_network",

	"etl_tags",
	"dvce_sent_tstamp",

	// Referer
	"refr_domain_userid",
	"refr_dvce_tstamp",

	"derived_contexts",
	"domain_sessionid",
	"derived_tstamp",

	// Event vendor/name/format/version
	"event_vendor",
	"event_name",
	"event_format",
	"event_version",

	"event_fingerprint",
	"true_tstamp",
}

// Snowplow returns the registry for the enriched event format.
func Snowplow() *Registry {
	return MustNew(snowplowColumns[:]...)
}
