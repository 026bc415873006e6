package fan

import (
	"errors"
	"testing"
	"time"

	"github.com/sochub/soc-hub/internal/infrastructure/config"
	"github.com/sochub/soc-hub/internal/telemetry"
	"github.com/sochub/soc-hub/internal/topics"
)

type publishRecord struct {
	topic   string
	payload string
}

type fakeSession struct {
	published []publishRecord
}

func (s *fakeSession) PublishString(topic topics.Topic, payload string) error {
	s.published = append(s.published, publishRecord{topic.Value, payload})
	return nil
}

// commands returns the payloads published on the actuator command topic,
// in order.
func (s *fakeSession) commands() []string {
	var out []string
	for _, p := range s.published {
		if p.topic == "fan/control" {
			out = append(out, p.payload)
		}
	}
	return out
}

// statuses returns the payloads published on the retained state topic.
func (s *fakeSession) statuses() []string {
	var out []string
	for _, p := range s.published {
		if p.topic == "fan/status/control" {
			out = append(out, p.payload)
		}
	}
	return out
}

type fakeSink struct {
	transitions []bool
}

func (s *fakeSink) WriteTransition(isOn bool, _ telemetry.Sample) {
	s.transitions = append(s.transitions, isOn)
}

func testTopics() Topics {
	return Topics{
		Command:       topics.Topic{Name: "fan_command_control", Value: "fan/control"},
		StatusControl: topics.Topic{Name: "fan_status_control", Value: "fan/status/control", Retain: true},
		StatusPercOn:  topics.Topic{Name: "fan_status_percon", Value: "fan/status/percon"},
		StatusPercOff: topics.Topic{Name: "fan_status_percoff", Value: "fan/status/percoff"},
		StatusTempOn:  topics.Topic{Name: "fan_status_tempon", Value: "fan/status/tempon"},
		StatusTempOff: topics.Topic{Name: "fan_status_tempoff", Value: "fan/status/tempoff"},
	}
}

func testController(t *testing.T, session *fakeSession) *Controller {
	t.Helper()
	cfg := config.FanConfig{ThresholdOnPercent: 70.0, ThresholdOffPercent: 60.0}
	c, err := NewController(cfg, session, testTopics())
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	return c
}

func sampleAt(percent float64) telemetry.Sample {
	return telemetry.Sample{
		RawTemperature:     percent * 0.85,
		TemperaturePercent: percent,
		Timestamp:          time.Now(),
	}
}

func TestNewController_InvertedThresholds(t *testing.T) {
	cfg := config.FanConfig{ThresholdOnPercent: 50.0, ThresholdOffPercent: 60.0}
	_, err := NewController(cfg, &fakeSession{}, testTopics())
	if !errors.Is(err, ErrInvalidThreshold) {
		t.Errorf("NewController() error = %v, want ErrInvalidThreshold", err)
	}
}

func TestNewController_NilSession(t *testing.T) {
	cfg := config.FanConfig{ThresholdOnPercent: 70.0, ThresholdOffPercent: 60.0}
	if _, err := NewController(cfg, nil, testTopics()); err == nil {
		t.Error("NewController() should require a session")
	}
}

// TestEvaluate_Hysteresis drives the controller through the full band:
// below, above on, inside the band, below off. Exactly two transitions
// must occur.
func TestEvaluate_Hysteresis(t *testing.T) {
	session := &fakeSession{}
	c := testController(t, session)

	for _, percent := range []float64{50, 72, 65, 58} {
		c.Evaluate(sampleAt(percent))
	}

	commands := session.commands()
	if len(commands) != 2 {
		t.Fatalf("actuator commands = %v, want exactly [ON OFF]", commands)
	}
	if commands[0] != CommandOn || commands[1] != CommandOff {
		t.Errorf("actuator commands = %v, want [ON OFF]", commands)
	}
	if c.IsOn() {
		t.Error("fan should be off after the final sample")
	}
}

// TestEvaluate_InBandIsNoOp verifies samples strictly between the
// thresholds never switch the fan in either state.
func TestEvaluate_InBandIsNoOp(t *testing.T) {
	session := &fakeSession{}
	c := testController(t, session)

	c.Evaluate(sampleAt(65))
	if c.IsOn() {
		t.Error("in-band sample must not switch the fan on")
	}

	c.Evaluate(sampleAt(75)) // on
	c.Evaluate(sampleAt(65))
	if !c.IsOn() {
		t.Error("in-band sample must not switch the fan off")
	}

	if got := len(session.commands()); got != 1 {
		t.Errorf("actuator commands = %d, want 1", got)
	}
}

func TestEvaluate_ThresholdBoundaries(t *testing.T) {
	session := &fakeSession{}
	c := testController(t, session)

	// Exactly at the on threshold switches on
	c.Evaluate(sampleAt(70))
	if !c.IsOn() {
		t.Error("sample at on threshold should switch the fan on")
	}

	// Exactly at the off threshold switches off
	c.Evaluate(sampleAt(60))
	if c.IsOn() {
		t.Error("sample at off threshold should switch the fan off")
	}
}

func TestEvaluate_RepeatedHighSamples(t *testing.T) {
	session := &fakeSession{}
	c := testController(t, session)

	for i := 0; i < 5; i++ {
		c.Evaluate(sampleAt(80))
	}

	if got := len(session.commands()); got != 1 {
		t.Errorf("actuator commands = %d, want 1 (no re-trigger while on)", got)
	}
}

// TestTransition_PublishesReadings verifies the moment-of-transition
// readings go to the direction-specific topics.
func TestTransition_PublishesReadings(t *testing.T) {
	session := &fakeSession{}
	c := testController(t, session)

	c.Evaluate(sampleAt(72))

	var percOn, tempOn string
	for _, p := range session.published {
		switch p.topic {
		case "fan/status/percon":
			percOn = p.payload
		case "fan/status/tempon":
			tempOn = p.payload
		case "fan/status/percoff", "fan/status/tempoff":
			t.Errorf("off-side topic published during on transition: %+v", p)
		}
	}
	if percOn != "72" {
		t.Errorf("percon payload = %q, want %q", percOn, "72")
	}
	if tempOn == "" {
		t.Error("tempon should carry the raw reading")
	}

	if got := session.statuses(); len(got) != 1 || got[0] != StatusRunning {
		t.Errorf("state topic = %v, want [RUNNING]", got)
	}
}

func TestHandleCommand_ManualOverride(t *testing.T) {
	session := &fakeSession{}
	sink := &fakeSink{}
	c := testController(t, session)
	c.SetSink(sink)

	c.Evaluate(sampleAt(50)) // below band, fan stays off

	if err := c.HandleCommand("ON"); err != nil {
		t.Fatalf("HandleCommand(ON) error = %v", err)
	}
	if !c.IsOn() {
		t.Fatal("manual ON should switch the fan on regardless of thresholds")
	}

	if err := c.HandleCommand("OFF"); err != nil {
		t.Fatalf("HandleCommand(OFF) error = %v", err)
	}
	if c.IsOn() {
		t.Fatal("manual OFF should switch the fan off")
	}

	if got := session.commands(); len(got) != 2 {
		t.Errorf("actuator commands = %v, want [ON OFF]", got)
	}
	if len(sink.transitions) != 2 {
		t.Errorf("sink transitions = %v, want [true false]", sink.transitions)
	}
}

func TestHandleCommand_Idempotent(t *testing.T) {
	session := &fakeSession{}
	c := testController(t, session)

	if err := c.HandleCommand("OFF"); err != nil {
		t.Fatalf("HandleCommand(OFF) error = %v", err)
	}
	if got := len(session.published); got != 0 {
		t.Errorf("OFF while off published %d messages, want 0", got)
	}

	c.HandleCommand("ON")
	c.HandleCommand("ON")
	if got := session.commands(); len(got) != 1 {
		t.Errorf("repeated ON published %v, want single ON", got)
	}
}

func TestHandleCommand_CaseAndWhitespace(t *testing.T) {
	session := &fakeSession{}
	c := testController(t, session)

	if err := c.HandleCommand("  on\n"); err != nil {
		t.Fatalf("HandleCommand should normalise case and whitespace: %v", err)
	}
	if !c.IsOn() {
		t.Error("normalised ON should switch the fan on")
	}
}

func TestHandleCommand_BeforeFirstSample(t *testing.T) {
	session := &fakeSession{}
	c := testController(t, session)

	// No telemetry yet, so there is no reading to attach
	if err := c.HandleCommand("ON"); err != nil {
		t.Fatalf("HandleCommand(ON) error = %v", err)
	}

	for _, p := range session.published {
		switch p.topic {
		case "fan/status/percon", "fan/status/tempon":
			t.Errorf("reading topic published without a sample: %+v", p)
		}
	}
	if got := session.commands(); len(got) != 1 || got[0] != CommandOn {
		t.Errorf("actuator commands = %v, want [ON]", got)
	}
}

func TestHandleCommand_Status(t *testing.T) {
	session := &fakeSession{}
	c := testController(t, session)

	if err := c.HandleCommand("STATUS"); err != nil {
		t.Fatalf("HandleCommand(STATUS) error = %v", err)
	}

	if got := session.statuses(); len(got) != 1 || got[0] != StatusIdle {
		t.Errorf("state topic = %v, want [IDLE]", got)
	}
	if len(session.commands()) != 0 {
		t.Error("STATUS must not touch the actuator")
	}
}

func TestHandleCommand_Unknown(t *testing.T) {
	session := &fakeSession{}
	c := testController(t, session)

	err := c.HandleCommand("REBOOT")
	if !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("HandleCommand(REBOOT) error = %v, want ErrUnknownCommand", err)
	}
	if len(session.published) != 0 {
		t.Error("unknown command must not publish")
	}
}

func TestOverrideThresholds(t *testing.T) {
	session := &fakeSession{}
	c := testController(t, session)

	if err := c.OverrideThresholdOn(80); err != nil {
		t.Fatalf("OverrideThresholdOn(80) error = %v", err)
	}
	if err := c.OverrideThresholdOff(50); err != nil {
		t.Fatalf("OverrideThresholdOff(50) error = %v", err)
	}

	on, off := c.Thresholds()
	if on != 80 || off != 50 {
		t.Errorf("Thresholds() = %v, %v, want 80, 50", on, off)
	}

	// The old on threshold no longer triggers
	c.Evaluate(sampleAt(72))
	if c.IsOn() {
		t.Error("sample below overridden on threshold must not switch on")
	}
	c.Evaluate(sampleAt(80))
	if !c.IsOn() {
		t.Error("sample at overridden on threshold should switch on")
	}
}

func TestOverrideThresholds_InvariantGuard(t *testing.T) {
	session := &fakeSession{}
	c := testController(t, session)

	if err := c.OverrideThresholdOn(55); !errors.Is(err, ErrInvalidThreshold) {
		t.Errorf("OverrideThresholdOn(55) error = %v, want ErrInvalidThreshold", err)
	}
	if err := c.OverrideThresholdOff(75); !errors.Is(err, ErrInvalidThreshold) {
		t.Errorf("OverrideThresholdOff(75) error = %v, want ErrInvalidThreshold", err)
	}

	// Rejected overrides leave the thresholds untouched
	on, off := c.Thresholds()
	if on != 70 || off != 60 {
		t.Errorf("Thresholds() = %v, %v, want unchanged 70, 60", on, off)
	}
}

func TestOverrideThresholds_EqualAllowed(t *testing.T) {
	session := &fakeSession{}
	c := testController(t, session)

	if err := c.OverrideThresholdOn(60); err != nil {
		t.Errorf("OverrideThresholdOn(60) should allow equality: %v", err)
	}
	if err := c.OverrideThresholdOff(60); err != nil {
		t.Errorf("OverrideThresholdOff(60) should allow equality: %v", err)
	}
}
