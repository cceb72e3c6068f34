package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	assert.Equal(t, "success", Status(nil))
	assert.Equal(t, "error", Status(errors.New("boom")))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, "transport_error", HTTPStatus(0))
	assert.Equal(t, "404", HTTPStatus(404))
}

func TestObserveAPI(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("test_op", "200"))

	ObserveAPI("test_op", 200, time.Now().Add(-50*time.Millisecond))

	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("test_op", "200"))
	assert.Equal(t, before+1, after)

	var m dto.Metric
	require.NoError(t, APIRequestDuration.WithLabelValues("test_op").(interface {
		Write(*dto.Metric) error
	}).Write(&m))
	assert.GreaterOrEqual(t, m.GetHistogram().GetSampleCount(), uint64(1))
}

func TestMarkRun(t *testing.T) {
	MarkRun("publish", nil)
	assert.Greater(t, testutil.ToFloat64(LastRunTimestamp.WithLabelValues("publish", "success")), float64(0))
}

func TestWriteTextfile(t *testing.T) {
	require.NoError(t, WriteTextfile(""))

	PagesTotal.WithLabelValues("created").Inc()
	path := filepath.Join(t.TempDir(), "archpub.prom")

	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "archpub_pages_total"), "expected pages metric in textfile")
}
