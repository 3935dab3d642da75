package quotasource

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
)

var quotaPrefix = []byte("tag_quota/")

func TestQuotaDocumentIDStartsWithPrefix(t *testing.T) {
	// Regression: the stored _id must actually start with the scan prefix
	// rangeFilter bounds against, or GetRange silently drops the row.
	for _, tagName := range []string{"fresh", "good", "sampleTag1", "test"} {
		id := quotaDocumentID(quotaPrefix, tagName)
		assert.True(t, strings.HasPrefix(id, string(quotaPrefix)), "id %q must start with prefix %q", id, quotaPrefix)
		assert.Equal(t, tagName, strings.TrimPrefix(id, string(quotaPrefix)))
	}
}

func TestRangeFilterBoundsCoverOnlyPrefixedIDs(t *testing.T) {
	filter := rangeFilter(quotaPrefix)
	idFilter, ok := filter["_id"].(bson.M)
	assert.True(t, ok)
	lower := idFilter["$gte"].(string)
	upper := idFilter["$lt"].(string)

	for _, tagName := range []string{"fresh", "good", "sampleTag1", "test", "zzzzz"} {
		id := quotaDocumentID(quotaPrefix, tagName)
		assert.True(t, id >= lower && id < upper, "prefixed id %q must fall within [%q, %q)", id, lower, upper)
	}

	// A bare, unprefixed tag name is exactly the bug this filter must catch:
	// before the fix, "_id": "fresh" would have been excluded by the old
	// $gte-only filter purely by string-sort coincidence, not by design.
	for _, bare := range []string{"fresh", "good", "sampleTag1"} {
		assert.False(t, bare >= lower && bare < upper, "bare tag %q must not satisfy the prefix range", bare)
	}

	// A key from a different, later namespace must not leak into this scan.
	other := "tag_quota0/other"
	assert.False(t, other >= lower && other < upper, "key outside the prefix namespace must not satisfy the range")
}

func TestRowFromDocumentRecoversBareTagAndRoundTripsQuota(t *testing.T) {
	d := quotaDocument{
		ID:                quotaDocumentID(quotaPrefix, "fresh"),
		TotalReadQuota:    9,
		ReservedReadQuota: 1,
	}

	row, err := rowFromDocument(quotaPrefix, d)
	assert.NoError(t, err)
	assert.Equal(t, "fresh", string(row.Key), "the published key must be the bare tag, not the prefixed _id")

	fields, err := DecodeQuota(row.Value)
	assert.NoError(t, err)
	assert.Equal(t, 9.0, fields.TotalReadQuota)
	assert.Equal(t, 1.0, fields.ReservedReadQuota)
}

func TestDecodeQuotaRejectsMalformedValue(t *testing.T) {
	_, err := DecodeQuota([]byte("not bson"))
	assert.Error(t, err)
}
