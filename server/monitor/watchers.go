package monitor

import (
	"github.com/ppecam/ppecam/pkg/alarm"
	"github.com/ppecam/ppecam/pkg/gen"
)

const alarmWatcherChannelSize = 20

// AddAlarmWatcher registers a channel that receives every alarm transition,
// across all sessions.
func (m *Monitor) AddAlarmWatcher() chan *alarm.Signal {
	m.alarmWatchersLock.Lock()
	defer m.alarmWatchersLock.Unlock()
	ch := make(chan *alarm.Signal, alarmWatcherChannelSize)
	m.alarmWatchers = append(m.alarmWatchers, ch)
	return ch
}

// RemoveAlarmWatcher unregisters an alarm watcher.
func (m *Monitor) RemoveAlarmWatcher(ch chan *alarm.Signal) {
	m.alarmWatchersLock.Lock()
	defer m.alarmWatchersLock.Unlock()
	for i, wch := range m.alarmWatchers {
		if wch == ch {
			m.alarmWatchers = gen.DeleteFromSliceUnordered(m.alarmWatchers, i)
			return
		}
	}
	m.Log.Warnf("Monitor.RemoveAlarmWatcher failed to find channel")
}

func (m *Monitor) sendToAlarmWatchers(signal *alarm.Signal) {
	m.alarmWatchersLock.RLock()
	for _, ch := range m.alarmWatchers {
		if len(ch) >= cap(ch)*9/10 {
			// A stalled watcher must not stall the pipeline, so we drop.
			m.Log.Warnf("Alarm watcher is falling behind. I am going to drop a signal.")
		} else {
			ch <- signal
		}
	}
	m.alarmWatchersLock.RUnlock()
}
