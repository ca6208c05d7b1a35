package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_ContainsCheckoutTasks(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	for _, taskType := range []string{"process-payment", "finalize-application", "upload-documents"} {
		a, ok := reg.Find(taskType)
		require.True(t, ok, taskType)
		assert.NotEmpty(t, a.InputSchema, taskType)
		assert.Equal(t, "checkout", a.Category)
	}

	a, _ := reg.Find("process-payment")
	assert.Equal(t, 6*time.Minute, a.TimeoutDuration(time.Minute))
}

func TestFind_Unknown(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)
	_, ok := reg.Find("send-notification")
	assert.False(t, ok)
}

func TestLoadRegistry_RejectsDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"activities":[{"id":"a","taskType":"x"},{"id":"b","taskType":"x"}]}`), 0o600))

	_, err := LoadRegistry(path)
	assert.ErrorContains(t, err, "duplicate")
}

func TestTimeoutDuration_Fallback(t *testing.T) {
	a := &Activity{Timeout: "soon"}
	assert.Equal(t, time.Second, a.TimeoutDuration(time.Second))
}
