package ingest

import (
	"fmt"
	"strings"
)

// KeywordTable holds flattened keyword-research items.
const KeywordTable = "keyword_research_items"

type column struct {
	name string
	typ  string
}

// keywordColumns lists the writable columns of KeywordTable in DDL order.
var keywordColumns = []column{
	{"response_id", "{{bigint}}"},
	{"task_id", "TEXT"},
	{"keyword", "TEXT NOT NULL"},
	{"location_code", "INTEGER NOT NULL DEFAULT 0"},
	{"language_code", "TEXT NOT NULL DEFAULT ''"},
	{"location_name", "TEXT"},
	{"language_name", "TEXT"},
	{"se_type", "TEXT"},

	{"keyword_info_se_type", "TEXT"},
	{"keyword_info_last_updated_time", "TEXT"},
	{"keyword_info_competition", "{{float}}"},
	{"keyword_info_competition_level", "TEXT"},
	{"keyword_info_cpc", "{{float}}"},
	{"keyword_info_search_volume", "{{bigint}}"},
	{"keyword_info_low_top_of_page_bid", "{{float}}"},
	{"keyword_info_high_top_of_page_bid", "{{float}}"},
	{"keyword_info_categories", "TEXT"},
	{"keyword_info_monthly_searches", "TEXT"},
	{"keyword_info_search_volume_trend_monthly", "INTEGER"},
	{"keyword_info_search_volume_trend_quarterly", "INTEGER"},
	{"keyword_info_search_volume_trend_yearly", "INTEGER"},

	{"keyword_info_normalized_with_bing_last_updated_time", "TEXT"},
	{"keyword_info_normalized_with_bing_search_volume", "{{bigint}}"},
	{"keyword_info_normalized_with_bing_is_normalized", "INTEGER"},
	{"keyword_info_normalized_with_bing_monthly_searches", "TEXT"},

	{"keyword_info_normalized_with_clickstream_last_updated_time", "TEXT"},
	{"keyword_info_normalized_with_clickstream_search_volume", "{{bigint}}"},
	{"keyword_info_normalized_with_clickstream_is_normalized", "INTEGER"},
	{"keyword_info_normalized_with_clickstream_monthly_searches", "TEXT"},

	{"clickstream_keyword_info_search_volume", "{{bigint}}"},
	{"clickstream_keyword_info_last_updated_time", "TEXT"},
	{"clickstream_keyword_info_gender_distribution_female", "INTEGER"},
	{"clickstream_keyword_info_gender_distribution_male", "INTEGER"},
	{"clickstream_keyword_info_age_distribution_18_24", "INTEGER"},
	{"clickstream_keyword_info_age_distribution_25_34", "INTEGER"},
	{"clickstream_keyword_info_age_distribution_35_44", "INTEGER"},
	{"clickstream_keyword_info_age_distribution_45_54", "INTEGER"},
	{"clickstream_keyword_info_age_distribution_55_64", "INTEGER"},
	{"clickstream_keyword_info_monthly_searches", "TEXT"},

	{"keyword_properties_se_type", "TEXT"},
	{"keyword_properties_core_keyword", "TEXT"},
	{"keyword_properties_synonym_clustering_algorithm", "TEXT"},
	{"keyword_properties_keyword_difficulty", "INTEGER"},
	{"keyword_properties_detected_language", "TEXT"},
	{"keyword_properties_is_another_language", "INTEGER"},

	{"serp_info_se_type", "TEXT"},
	{"serp_info_check_url", "TEXT"},
	{"serp_info_serp_item_types", "TEXT"},
	{"serp_info_se_results_count", "{{bigint}}"},
	{"serp_info_last_updated_time", "TEXT"},
	{"serp_info_previous_updated_time", "TEXT"},

	{"avg_backlinks_info_se_type", "TEXT"},
	{"avg_backlinks_info_backlinks", "{{float}}"},
	{"avg_backlinks_info_dofollow", "{{float}}"},
	{"avg_backlinks_info_referring_pages", "{{float}}"},
	{"avg_backlinks_info_referring_domains", "{{float}}"},
	{"avg_backlinks_info_referring_main_domains", "{{float}}"},
	{"avg_backlinks_info_rank", "{{float}}"},
	{"avg_backlinks_info_main_domain_rank", "{{float}}"},
	{"avg_backlinks_info_last_updated_time", "TEXT"},

	{"search_intent_info_se_type", "TEXT"},
	{"search_intent_info_main_intent", "TEXT"},
	{"search_intent_info_foreign_intent", "TEXT"},
	{"search_intent_info_last_updated_time", "TEXT"},

	{"keyword_intent_label", "TEXT"},
	{"keyword_intent_probability", "{{float}}"},
	{"secondary_keyword_intents_probability_informational", "{{float}}"},
	{"secondary_keyword_intents_probability_commercial", "{{float}}"},
	{"secondary_keyword_intents_probability_transactional", "{{float}}"},
	{"secondary_keyword_intents_probability_navigational", "{{float}}"},

	{"related_keywords", "TEXT"},
	{"source", "TEXT NOT NULL DEFAULT 'api'"},

	{"created_at", "TEXT NOT NULL"},
	{"updated_at", "TEXT NOT NULL"},
}

var keywordColumnSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(keywordColumns))
	for _, c := range keywordColumns {
		m[c.name] = struct{}{}
	}
	return m
}()

// naturalKey is the uniqueness key of KeywordTable.
var naturalKey = []string{"keyword", "location_code", "language_code"}

// KeywordSchema returns the DDL statements for KeywordTable.
func KeywordSchema() []string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n    id {{id}}", KeywordTable)
	for _, c := range keywordColumns {
		fmt.Fprintf(&b, ",\n    %s %s", c.name, c.typ)
	}
	b.WriteString("\n)")

	return []string{
		b.String(),
		fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS idx_%[1]s_natural ON %[1]s(%s)", KeywordTable, strings.Join(naturalKey, ", ")),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%[1]s_response ON %[1]s(response_id)", KeywordTable),
	}
}
