package ingest

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/aceteam-ai/relaycache/internal/store"
)

// Item is one flattened row, keyed by column name. A key holding nil writes
// NULL; a missing key leaves the column to its schema default.
type Item map[string]any

// ExtractOptions controls which optional payloads are kept.
type ExtractOptions struct {
	SkipKeywordInfoMonthlySearches            bool
	SkipBingMonthlySearches                   bool
	SkipClickstreamNormalizedMonthlySearches  bool
	SkipClickstreamKeywordInfoMonthlySearches bool
}

// Intents recognized in secondary_keyword_intents.
var Intents = []string{"informational", "commercial", "transactional", "navigational"}

// ExtractTaskData pulls the task envelope fields relevant to keyword rows.
// Fields absent from the task are left out.
func ExtractTaskData(task map[string]any) Item {
	out := Item{}
	if id, ok := task["id"].(string); ok && id != "" {
		out["task_id"] = id
	}
	data := mapOf(task["data"])
	copyString(out, "se_type", data, "se_type")
	copyInt(out, "location_code", data, "location_code")
	copyString(out, "language_code", data, "language_code")
	copyString(out, "location_name", data, "location_name")
	copyString(out, "language_name", data, "language_name")
	return out
}

// ExtractResultMetadata pulls the result envelope fields relevant to keyword
// rows. Fields absent from the result are left out.
func ExtractResultMetadata(result map[string]any) Item {
	out := Item{}
	copyString(out, "se_type", result, "se_type")
	copyInt(out, "location_code", result, "location_code")
	copyString(out, "language_code", result, "language_code")
	return out
}

// ExtractKeywordFields flattens a keyword item into a keyword_research_items
// row. merged holds task and result metadata used when the item lacks its own
// location or language; now stamps created_at and updated_at.
func ExtractKeywordFields(item map[string]any, related []any, merged Item, now time.Time, opts ExtractOptions) Item {
	row := Item{}
	for k, v := range merged {
		if _, ok := keywordColumnSet[k]; ok {
			row[k] = v
		}
	}

	copyString(row, "keyword", item, "keyword")
	copyInt(row, "location_code", item, "location_code")
	copyString(row, "language_code", item, "language_code")
	copyString(row, "se_type", item, "se_type")

	ki := mapOf(item["keyword_info"])
	row["keyword_info_se_type"] = str(ki["se_type"])
	row["keyword_info_last_updated_time"] = str(ki["last_updated_time"])
	row["keyword_info_competition"] = float(ki["competition"])
	row["keyword_info_competition_level"] = str(ki["competition_level"])
	row["keyword_info_cpc"] = float(ki["cpc"])
	row["keyword_info_search_volume"] = integer(ki["search_volume"])
	row["keyword_info_low_top_of_page_bid"] = float(ki["low_top_of_page_bid"])
	row["keyword_info_high_top_of_page_bid"] = float(ki["high_top_of_page_bid"])
	row["keyword_info_categories"] = jsonText(ki["categories"])
	row["keyword_info_search_volume_trend_monthly"] = integer(mapOf(ki["search_volume_trend"])["monthly"])
	row["keyword_info_search_volume_trend_quarterly"] = integer(mapOf(ki["search_volume_trend"])["quarterly"])
	row["keyword_info_search_volume_trend_yearly"] = integer(mapOf(ki["search_volume_trend"])["yearly"])
	if !opts.SkipKeywordInfoMonthlySearches {
		row["keyword_info_monthly_searches"] = jsonText(ki["monthly_searches"])
	}

	bing := mapOf(item["keyword_info_normalized_with_bing"])
	row["keyword_info_normalized_with_bing_last_updated_time"] = str(bing["last_updated_time"])
	row["keyword_info_normalized_with_bing_search_volume"] = integer(bing["search_volume"])
	row["keyword_info_normalized_with_bing_is_normalized"] = boolean(bing["is_normalized"])
	if !opts.SkipBingMonthlySearches {
		row["keyword_info_normalized_with_bing_monthly_searches"] = jsonText(bing["monthly_searches"])
	}

	cs := mapOf(item["keyword_info_normalized_with_clickstream"])
	row["keyword_info_normalized_with_clickstream_last_updated_time"] = str(cs["last_updated_time"])
	row["keyword_info_normalized_with_clickstream_search_volume"] = integer(cs["search_volume"])
	row["keyword_info_normalized_with_clickstream_is_normalized"] = boolean(cs["is_normalized"])
	if !opts.SkipClickstreamNormalizedMonthlySearches {
		row["keyword_info_normalized_with_clickstream_monthly_searches"] = jsonText(cs["monthly_searches"])
	}

	cki := mapOf(item["clickstream_keyword_info"])
	gender := mapOf(cki["gender_distribution"])
	age := mapOf(cki["age_distribution"])
	row["clickstream_keyword_info_search_volume"] = integer(cki["search_volume"])
	row["clickstream_keyword_info_last_updated_time"] = str(cki["last_updated_time"])
	row["clickstream_keyword_info_gender_distribution_female"] = integer(gender["female"])
	row["clickstream_keyword_info_gender_distribution_male"] = integer(gender["male"])
	for _, bucket := range []string{"18-24", "25-34", "35-44", "45-54", "55-64"} {
		row["clickstream_keyword_info_age_distribution_"+strings.ReplaceAll(bucket, "-", "_")] = integer(age[bucket])
	}
	if !opts.SkipClickstreamKeywordInfoMonthlySearches {
		row["clickstream_keyword_info_monthly_searches"] = jsonText(cki["monthly_searches"])
	}

	props := mapOf(item["keyword_properties"])
	row["keyword_properties_se_type"] = str(props["se_type"])
	row["keyword_properties_core_keyword"] = str(props["core_keyword"])
	row["keyword_properties_synonym_clustering_algorithm"] = str(props["synonym_clustering_algorithm"])
	row["keyword_properties_keyword_difficulty"] = integer(props["keyword_difficulty"])
	row["keyword_properties_detected_language"] = str(props["detected_language"])
	row["keyword_properties_is_another_language"] = boolean(props["is_another_language"])

	serp := mapOf(item["serp_info"])
	row["serp_info_se_type"] = str(serp["se_type"])
	row["serp_info_check_url"] = str(serp["check_url"])
	row["serp_info_serp_item_types"] = jsonText(serp["serp_item_types"])
	row["serp_info_se_results_count"] = integer(serp["se_results_count"])
	row["serp_info_last_updated_time"] = str(serp["last_updated_time"])
	row["serp_info_previous_updated_time"] = str(serp["previous_updated_time"])

	bl := mapOf(item["avg_backlinks_info"])
	row["avg_backlinks_info_se_type"] = str(bl["se_type"])
	row["avg_backlinks_info_backlinks"] = float(bl["backlinks"])
	row["avg_backlinks_info_dofollow"] = float(bl["dofollow"])
	row["avg_backlinks_info_referring_pages"] = float(bl["referring_pages"])
	row["avg_backlinks_info_referring_domains"] = float(bl["referring_domains"])
	row["avg_backlinks_info_referring_main_domains"] = float(bl["referring_main_domains"])
	row["avg_backlinks_info_rank"] = float(bl["rank"])
	row["avg_backlinks_info_main_domain_rank"] = float(bl["main_domain_rank"])
	row["avg_backlinks_info_last_updated_time"] = str(bl["last_updated_time"])

	intent := mapOf(item["search_intent_info"])
	row["search_intent_info_se_type"] = str(intent["se_type"])
	row["search_intent_info_main_intent"] = str(intent["main_intent"])
	row["search_intent_info_foreign_intent"] = jsonText(intent["foreign_intent"])
	row["search_intent_info_last_updated_time"] = str(intent["last_updated_time"])

	ki2 := mapOf(item["keyword_intent"])
	row["keyword_intent_label"] = str(ki2["label"])
	row["keyword_intent_probability"] = float(ki2["probability"])
	for _, label := range Intents {
		row["secondary_keyword_intents_probability_"+label] = nil
	}
	for _, e := range listOf(item["secondary_keyword_intents"]) {
		m := mapOf(e)
		label, _ := m["label"].(string)
		col := "secondary_keyword_intents_probability_" + label
		if _, ok := row[col]; ok {
			row[col] = float(m["probability"])
		}
	}

	if related != nil {
		row["related_keywords"] = jsonText(related)
	} else {
		row["related_keywords"] = nil
	}

	ts := store.FormatTime(now)
	row["created_at"] = ts
	row["updated_at"] = ts
	return row
}

func mapOf(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func listOf(v any) []any {
	l, _ := v.([]any)
	return l
}

func copyString(dst Item, col string, src map[string]any, key string) {
	if s, ok := src[key].(string); ok && s != "" {
		dst[col] = s
	}
}

func copyInt(dst Item, col string, src map[string]any, key string) {
	if n := integer(src[key]); n != nil {
		dst[col] = n
	}
}

// str returns v as a string, or nil when v is not a non-empty string.
func str(v any) any {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return nil
}

func integer(v any) any {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return int64(f)
		}
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i
		}
	}
	return nil
}

func float(v any) any {
	switch n := v.(type) {
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return nil
}

func boolean(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return int64(1)
		}
		return int64(0)
	}
	return nil
}

// jsonText encodes non-empty lists and maps; empty or missing values are nil.
func jsonText(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		if len(t) == 0 {
			return nil
		}
	case map[string]any:
		if len(t) == 0 {
			return nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return string(data)
}
