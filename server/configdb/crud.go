package configdb

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/ppecam/ppecam/pkg/alarm"
	"github.com/ppecam/ppecam/pkg/nn"
	"gorm.io/gorm"
)

// GetPolicy returns the current policy, creating the default record on first use.
func (c *ConfigDB) GetPolicy() (*Policy, error) {
	policy := Policy{}
	err := c.DB.First(&policy).Error
	if err == nil {
		return &policy, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	policy = *DefaultPolicy()
	if err := c.DB.Create(&policy).Error; err != nil {
		return nil, err
	}
	c.Log.Infof("Created default policy (required: %v)", policy.RequiredGear)
	return &policy, nil
}

// SetPolicy validates and persists a new policy, preserving the record's identity.
func (c *ConfigDB) SetPolicy(policy *Policy) error {
	if err := ValidatePolicy(policy); err != nil {
		return err
	}
	current, err := c.GetPolicy()
	if err != nil {
		return err
	}
	policy.ID = current.ID
	return c.DB.Save(policy).Error
}

// ValidatePolicy rejects policies that the pipeline cannot run with.
func ValidatePolicy(policy *Policy) error {
	if _, bad := policy.RequiredClasses(); len(bad) != 0 {
		return fmt.Errorf("Unrecognized gear class(es): %v", strings.Join(bad, ", "))
	}
	if policy.MinConfidence < 0 || policy.MinConfidence > 1 {
		return fmt.Errorf("minConfidence must be between 0 and 1")
	}
	if policy.NmsIou < 0 || policy.NmsIou > 1 {
		return fmt.Errorf("nmsIou must be between 0 and 1")
	}
	if policy.MinOverlap < 0 || policy.MinOverlap > 1 {
		return fmt.Errorf("minOverlap must be between 0 and 1")
	}
	if policy.TriggerFrames < 0 || policy.ClearFrames < 0 {
		return fmt.Errorf("triggerFrames and clearFrames may not be negative")
	}
	return nil
}

// AddAlarmEvent records an alarm transition.
func (c *ConfigDB) AddAlarmEvent(signal *alarm.Signal, missing []int) error {
	names := []string{}
	for _, class := range missing {
		if class >= 0 && class < len(nn.PPEClasses) {
			names = append(names, nn.PPEClasses[class])
		}
	}
	event := AlarmEvent{
		Time:    dbh.MakeIntTime(signal.At),
		Kind:    signal.Kind.String(),
		Frame:   signal.Frame,
		Missing: strings.Join(names, ","),
	}
	return c.DB.Create(&event).Error
}

// RecentAlarmEvents returns the latest alarm transitions, newest first.
func (c *ConfigDB) RecentAlarmEvents(limit int) ([]AlarmEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	events := []AlarmEvent{}
	if err := c.DB.Order("time DESC, id DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// PurgeAlarmEventsBefore deletes events older than the cutoff.
func (c *ConfigDB) PurgeAlarmEventsBefore(cutoff time.Time) error {
	return c.DB.Where("time < ?", dbh.MakeIntTime(cutoff)).Delete(&AlarmEvent{}).Error
}

func (c *ConfigDB) GetVariable(key string) (string, error) {
	v := Variable{}
	if err := c.DB.Where("key = ?", key).First(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return v.Value, nil
}

func (c *ConfigDB) SetVariable(key, value string) error {
	return c.DB.Exec("INSERT INTO variable (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value", key, value).Error
}
