package ingest

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadForecast(t *testing.T) {
	f, err := ReadForecast(strings.NewReader(`{"257": {"1630864800": 4322.5}}`))
	require.NoError(t, err)
	assert.Equal(t, 4322.5, f[257][1630864800])

	var buf bytes.Buffer
	require.NoError(t, WriteForecast(&buf, f))
	again, err := ReadForecast(&buf)
	require.NoError(t, err)
	assert.Equal(t, f, again)

	_, err = ReadForecast(strings.NewReader(`{"x": {}}`))
	assert.Error(t, err)
}

func TestReadRequests(t *testing.T) {
	single := `{"screen_ids":[257],"desired_ots":3600,"start_date":"2021-09-06T00:00:00+07:00",
		"end_date":"2021-09-07T00:00:00+07:00","week_days":[0],"hours":[1],"frequency":72}`

	batch, err := ReadRequests(strings.NewReader(single))
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, []int64{257}, batch[0].ScreenIDs)
	assert.Equal(t, 72, batch[0].Frequency)

	batch, err = ReadRequests(strings.NewReader("  [" + single + "," + single + "]"))
	require.NoError(t, err)
	assert.Len(t, batch, 2)

	_, err = ReadRequests(strings.NewReader("   "))
	assert.Error(t, err)

	_, err = ReadRequests(strings.NewReader("[{"))
	assert.Error(t, err)

}
