package progress

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTrackerLifecycle(t *testing.T) {
	tracker := NewTracker()

	tracker.Init("job-1", 100)

	got := tracker.Get("job-1")
	require.NotNil(t, got)
	require.Equal(t, StatusProcessing, got.Status)
	require.Equal(t, 100, got.Total)
	require.Equal(t, 0, got.Progress)
	require.Equal(t, 0, got.Percentage)
	require.Nil(t, got.EndTime)

	tracker.Update("job-1", 50, "正在写入第 1 批")
	got = tracker.Get("job-1")
	require.Equal(t, 50, got.Progress)
	require.Equal(t, 50, got.Percentage)
	require.Equal(t, "正在写入第 1 批", got.Message)

	tracker.Complete("job-1", "导入完成", []string{"batch 2: 写入失败"})
	got = tracker.Get("job-1")
	require.Equal(t, StatusCompleted, got.Status)
	require.Equal(t, 100, got.Progress)
	require.Equal(t, 100, got.Percentage)
	require.Equal(t, []string{"batch 2: 写入失败"}, got.Errors)
	require.NotNil(t, got.EndTime)
}

func TestTrackerGetUnknownJob(t *testing.T) {
	tracker := NewTracker()
	require.Nil(t, tracker.Get("不存在"))
	require.False(t, tracker.Exists("不存在"))
}

func TestTrackerUpdateUnknownJobIsNoop(t *testing.T) {
	tracker := NewTracker()
	tracker.Update("不存在", 10, "迷路的更新")
	require.Nil(t, tracker.Get("不存在"))
}

func TestTrackerFailKeepsProgress(t *testing.T) {
	tracker := NewTracker()
	tracker.Init("job-2", 10)
	tracker.Update("job-2", 3, "")

	tracker.Fail("job-2", "CSV 解析失败", nil)

	got := tracker.Get("job-2")
	require.Equal(t, StatusFailed, got.Status)
	require.Equal(t, "CSV 解析失败", got.Message)
	require.Equal(t, 3, got.Progress)
	require.NotNil(t, got.EndTime)
}

func TestTrackerTerminalStateIsFinal(t *testing.T) {
	tracker := NewTracker()
	tracker.Init("job-3", 5)
	tracker.Complete("job-3", "导入完成", nil)

	// 终态后的变更全部忽略
	tracker.Update("job-3", 1, "迟到的更新")
	tracker.Fail("job-3", "迟到的失败", nil)

	got := tracker.Get("job-3")
	require.Equal(t, StatusCompleted, got.Status)
	require.Equal(t, 5, got.Progress)
	require.Equal(t, "导入完成", got.Message)
}

func TestTrackerReinitOverwrites(t *testing.T) {
	tracker := NewTracker()
	tracker.Init("job-4", 10)
	tracker.Update("job-4", 5, "")

	tracker.Init("job-4", 20)

	got := tracker.Get("job-4")
	require.Equal(t, 20, got.Total)
	require.Equal(t, 0, got.Progress)
	require.Equal(t, StatusProcessing, got.Status)
}

func TestTrackerCleanupAfterTerminal(t *testing.T) {
	tracker := NewTracker(WithCleanupDelay(30 * time.Millisecond))
	tracker.Init("job-5", 1)
	tracker.Complete("job-5", "导入完成", nil)

	// 清理延迟内仍可查询
	require.NotNil(t, tracker.Get("job-5"))

	require.Eventually(t, func() bool {
		return tracker.Get("job-5") == nil && !tracker.Exists("job-5")
	}, time.Second, 10*time.Millisecond)
}

func TestTrackerProcessingJobNotCleaned(t *testing.T) {
	tracker := NewTracker(WithCleanupDelay(10 * time.Millisecond))
	tracker.Init("job-6", 1)

	time.Sleep(50 * time.Millisecond)
	// 非终态任务不会被清理
	require.NotNil(t, tracker.Get("job-6"))
}

func TestTrackerPercentageZeroTotal(t *testing.T) {
	tracker := NewTracker()
	tracker.Init("job-7", 0)
	tracker.Update("job-7", 0, "")
	require.Equal(t, 0, tracker.Get("job-7").Percentage)
}

func TestTrackerConcurrentAccess(t *testing.T) {
	tracker := NewTracker()
	tracker.Init("job-8", 1000)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			tracker.Update("job-8", n, "")
		}(i)
		go func() {
			defer wg.Done()
			_ = tracker.Get("job-8")
		}()
	}
	wg.Wait()

	require.Equal(t, StatusProcessing, tracker.Get("job-8").Status)
}

func TestTrackerGetReturnsCopy(t *testing.T) {
	tracker := NewTracker()
	tracker.Init("job-9", 10)
	tracker.Complete("job-9", "导入完成", []string{"batch 1: 超时"})

	got := tracker.Get("job-9")
	got.Errors[0] = "被篡改"
	got.Progress = -1

	again := tracker.Get("job-9")
	require.Equal(t, "batch 1: 超时", again.Errors[0])
	require.Equal(t, 10, again.Progress)
}
