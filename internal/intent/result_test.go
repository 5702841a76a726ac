package intent

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapedResult_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(Failed(RecentRepos))
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"Failed to fetch recent_repos data."}`, string(data))

	data, err = json.Marshal(ShapedResult{Value: []LanguageCount{{"Go", 2}}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"language":"Go","count":2}]`, string(data))
}

func TestAggregatedData_DecodesTypedValues(t *testing.T) {
	in := AggregatedData{
		UserBio:         {Value: Profile{Login: "octocat", PublicRepos: 8}},
		RepoLanguages:   {Value: []LanguageCount{{"C", 1}}},
		RepositoryStats: {Value: RepoStats{TotalStars: 3, PrimaryLanguage: "C"}},
		RecentRepos:     Failed(RecentRepos),
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out AggregatedData
	require.NoError(t, json.Unmarshal(data, &out))

	assert.Equal(t, in, out)
	assert.IsType(t, Profile{}, out[UserBio].Value)
	assert.True(t, out[RecentRepos].IsError())
}

func TestAggregatedData_UnknownIntentRejected(t *testing.T) {
	var out AggregatedData
	err := json.Unmarshal([]byte(`{"weather":{"temp":3}}`), &out)
	assert.ErrorIs(t, err, ErrUnknownIntent)
}

func TestAggregatedData_Keys(t *testing.T) {
	d := AggregatedData{RepoLanguages: {}, Followers: {}, UserBio: {}}
	assert.Equal(t, []Intent{Followers, RepoLanguages, UserBio}, d.Keys())
}

func TestShapedResult_Len(t *testing.T) {
	assert.Equal(t, 2, ShapedResult{Value: []Person{{}, {}}}.Len())
	assert.Equal(t, 1, ShapedResult{Value: Profile{}}.Len())
	assert.Equal(t, 0, ShapedResult{}.Len())
}
