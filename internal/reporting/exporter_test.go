package reporting

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleReport struct {
	Metric string    `json:"metric" msgpack:"metric"`
	Values []float64 `json:"values" msgpack:"values"`
}

type fakeUploader struct {
	keys []string
	err  error
}

func (u *fakeUploader) Upload(ctx context.Context, key string, body []byte, contentType string) error {
	u.keys = append(u.keys, key)
	return u.err
}

func newTestExporter(t *testing.T) (*Exporter, string) {
	dir := filepath.Join(t.TempDir(), "reports")
	e, err := NewExporter(dir, zerolog.Nop())
	require.NoError(t, err)
	return e, dir
}

func TestExport_WritesJSONAndMsgpack(t *testing.T) {
	e, dir := newTestExporter(t)

	report := sampleReport{Metric: "hypervolume", Values: []float64{0.1, 0.25}}
	paths, err := e.Export(context.Background(), "grid", "abc", report)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Join(dir, "grid_abc.json"), paths[0])
	assert.Equal(t, filepath.Join(dir, "grid_abc.msgpack"), paths[1])

	for _, p := range paths {
		_, err := os.Stat(p)
		require.NoError(t, err)

		var env Envelope
		require.NoError(t, Load(p, &env))
		assert.Equal(t, "grid", env.Kind)
		assert.Equal(t, "abc", env.SessionID)
		assert.False(t, env.GeneratedAt.IsZero())
		assert.Greater(t, env.Host.LogicalCPUs, 0)

		decoded, ok := env.Report.(map[string]interface{})
		require.True(t, ok, "report should decode as a map from %s", p)
		assert.Equal(t, "hypervolume", decoded["metric"])
	}
}

func TestExport_UploadsUnderSessionPrefix(t *testing.T) {
	e, _ := newTestExporter(t)
	up := &fakeUploader{}
	e.SetUploader(up)

	_, err := e.Export(context.Background(), "convergence", "s1", sampleReport{Metric: "spread"})
	require.NoError(t, err)
	assert.Equal(t, []string{"tuning/s1/convergence_s1.json", "tuning/s1/convergence_s1.msgpack"}, up.keys)
}

func TestExport_UploadFailureKeepsLocalFiles(t *testing.T) {
	e, _ := newTestExporter(t)
	e.SetUploader(&fakeUploader{err: errors.New("network down")})

	paths, err := e.Export(context.Background(), "grid", "s2", sampleReport{})
	require.NoError(t, err)
	assert.Len(t, paths, 2)
}

func TestCollectHostInfo(t *testing.T) {
	info := CollectHostInfo()
	assert.Greater(t, info.LogicalCPUs, 0)
	assert.NotEmpty(t, info.Platform)
	assert.NotEmpty(t, info.GoVersion)
}
