package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/msoriano-dev/updown-cycle-bot/pkg/types"
)

func TestDetectDump_FiresOnThresholdDrop(t *testing.T) {
	tr := New(0.02, zap.NewNop())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tr.AddSnapshot(types.SideUp, 0.60, base)
	tr.AddSnapshot(types.SideUp, 0.58, base.Add(2*time.Second))
	tr.AddSnapshot(types.SideUp, 0.48, base.Add(4*time.Second))

	det := tr.DetectDump(0.15, 10*time.Second, base.Add(4*time.Second))

	require.Equal(t, types.SideUp, det.Side)
	assert.InDelta(t, 0.20, det.DropPct, 1e-9)
	assert.Equal(t, 0.60, det.MaxSeen)
	assert.Equal(t, 0.48, det.Current)
	assert.True(t, tr.IsTriggered(types.SideUp))
}

func TestDetectDump_BelowThresholdIsNone(t *testing.T) {
	tr := New(0.02, zap.NewNop())
	base := time.Now()

	tr.AddSnapshot(types.SideDown, 0.50, base)
	tr.AddSnapshot(types.SideDown, 0.46, base.Add(time.Second))

	det := tr.DetectDump(0.15, 10*time.Second, base.Add(time.Second))
	assert.Equal(t, types.SideNone, det.Side)
	assert.False(t, tr.IsTriggered(types.SideDown))
}

func TestDetectDump_NeedsTwoPointsInWindow(t *testing.T) {
	tr := New(0.02, zap.NewNop())
	base := time.Now()

	// One fresh point plus one far outside the window.
	tr.AddSnapshot(types.SideUp, 0.80, base.Add(-30*time.Second))
	tr.AddSnapshot(types.SideUp, 0.40, base)

	det := tr.DetectDump(0.15, 10*time.Second, base)
	assert.Equal(t, types.SideNone, det.Side)
}

func TestDetectDump_LatchPreventsRefire(t *testing.T) {
	tr := New(0.02, zap.NewNop())
	base := time.Now()

	tr.AddSnapshot(types.SideUp, 0.60, base)
	tr.AddSnapshot(types.SideUp, 0.40, base.Add(time.Second))

	first := tr.DetectDump(0.15, 10*time.Second, base.Add(time.Second))
	require.Equal(t, types.SideUp, first.Side)

	// Same dump still visible, but the side is latched.
	second := tr.DetectDump(0.15, 10*time.Second, base.Add(2*time.Second))
	assert.Equal(t, types.SideNone, second.Side)

	tr.Reset()
	assert.False(t, tr.IsTriggered(types.SideUp))
}

func TestUnlatch_AllowsRefireWithHistoryIntact(t *testing.T) {
	tr := New(0.02, zap.NewNop())
	base := time.Now()

	tr.AddSnapshot(types.SideUp, 0.60, base)
	tr.AddSnapshot(types.SideUp, 0.40, base.Add(time.Second))

	first := tr.DetectDump(0.15, 10*time.Second, base.Add(time.Second))
	require.Equal(t, types.SideUp, first.Side)

	// The detection didn't turn into an entry; clearing the latch lets the
	// still-visible dump fire again without rebuilding history.
	tr.Unlatch(types.SideUp)
	assert.False(t, tr.IsTriggered(types.SideUp))

	second := tr.DetectDump(0.15, 10*time.Second, base.Add(2*time.Second))
	require.Equal(t, types.SideUp, second.Side)
	assert.Equal(t, 0.60, second.MaxSeen)
}

func TestDetectDump_UpEvaluatedBeforeDown(t *testing.T) {
	tr := New(0.02, zap.NewNop())
	base := time.Now()

	// Both sides dump simultaneously; UP must win.
	tr.AddSnapshot(types.SideUp, 0.60, base)
	tr.AddSnapshot(types.SideUp, 0.40, base.Add(time.Second))
	tr.AddSnapshot(types.SideDown, 0.60, base)
	tr.AddSnapshot(types.SideDown, 0.30, base.Add(time.Second))

	det := tr.DetectDump(0.15, 10*time.Second, base.Add(time.Second))
	assert.Equal(t, types.SideUp, det.Side)

	// DOWN is still eligible on the next pass.
	det = tr.DetectDump(0.15, 10*time.Second, base.Add(2*time.Second))
	assert.Equal(t, types.SideDown, det.Side)
}

func TestAddSnapshot_RejectsInvalidPrices(t *testing.T) {
	tr := New(0.02, zap.NewNop())
	base := time.Now()

	tr.AddSnapshot(types.SideUp, 0, base)
	tr.AddSnapshot(types.SideUp, -0.5, base)
	tr.AddSnapshot(types.SideUp, 0.01, base) // below validity floor

	st := tr.Status(10*time.Second, base)
	assert.Equal(t, 0, st[types.SideUp].Points)
}

func TestAddSnapshot_PrunesOldEntries(t *testing.T) {
	tr := New(0.02, zap.NewNop())
	base := time.Now()

	tr.AddSnapshot(types.SideUp, 0.90, base)
	tr.AddSnapshot(types.SideUp, 0.50, base.Add(90*time.Second))

	// The 90s-old point fell outside the 60s retention horizon, so only
	// one point remains and no dump can be computed.
	det := tr.DetectDump(0.15, 2*time.Minute, base.Add(90*time.Second))
	assert.Equal(t, types.SideNone, det.Side)

	st := tr.Status(2*time.Minute, base.Add(90*time.Second))
	assert.Equal(t, 1, st[types.SideUp].Points)
}

func TestStatus_IgnoresLatch(t *testing.T) {
	tr := New(0.02, zap.NewNop())
	base := time.Now()

	tr.AddSnapshot(types.SideUp, 0.60, base)
	tr.AddSnapshot(types.SideUp, 0.40, base.Add(time.Second))

	det := tr.DetectDump(0.15, 10*time.Second, base.Add(time.Second))
	require.Equal(t, types.SideUp, det.Side)

	st := tr.Status(10*time.Second, base.Add(time.Second))
	up := st[types.SideUp]
	assert.True(t, up.Triggered)
	assert.InDelta(t, 1.0/3.0, up.DropPct, 1e-9)
}
