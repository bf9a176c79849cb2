package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/collection"

	"github.com/padlog/padlog/internal/pkg/logger"
)

var newTimingWheel = collection.NewTimingWheel

// TimingWheelService 封装 go-zero 的时间轮，webhook 重试等
// 延迟任务都挂在这里，避免为每次重试起一个 timer。
type TimingWheelService struct {
	tw       *collection.TimingWheel
	stopOnce sync.Once
}

// NewTimingWheelService 1 秒刻度、3600 槽位，最长支持 1 小时延迟。
func NewTimingWheelService() (*TimingWheelService, error) {
	tw, err := newTimingWheel(1*time.Second, 3600, func(key, value any) {
		if fn, ok := value.(func()); ok {
			fn()
		}
	})
	if err != nil {
		return nil, fmt.Errorf("create timing wheel: %w", err)
	}
	return &TimingWheelService{tw: tw}, nil
}

func (s *TimingWheelService) Start() {
	// go-zero 的时间轮创建即运行，这里只留日志锚点
	logger.L().Info("timing wheel started")
}

func (s *TimingWheelService) Stop() {
	s.stopOnce.Do(func() {
		s.tw.Stop()
		logger.L().Info("timing wheel stopped")
	})
}

// Schedule 安排一次性延迟任务。同名任务会顶掉未触发的前一个。
func (s *TimingWheelService) Schedule(name string, delay time.Duration, fn func()) {
	_ = s.tw.SetTimer(name, fn, delay)
}

// ScheduleRecurring 安排周期任务（触发后自续）。
func (s *TimingWheelService) ScheduleRecurring(name string, interval time.Duration, fn func()) {
	var schedule func()
	schedule = func() {
		fn()
		_ = s.tw.SetTimer(name, schedule, interval)
	}
	_ = s.tw.SetTimer(name, schedule, interval)
}

func (s *TimingWheelService) Cancel(name string) {
	_ = s.tw.RemoveTimer(name)
}
