package gate

import (
	"testing"
	"time"
)

// scriptedVAD returns a fixed sequence of speech/non-speech verdicts, one
// per IsSpeech call, repeating the last value once exhausted.
type scriptedVAD struct {
	script []bool
	i      int
}

func (v *scriptedVAD) IsSpeech(pcm16 []byte, rate int) (bool, error) {
	if v.i >= len(v.script) {
		return v.script[len(v.script)-1], nil
	}
	r := v.script[v.i]
	v.i++
	return r, nil
}
func (v *scriptedVAD) Reset() { v.i = 0 }

func loudFrame(n int) []float32 {
	f := make([]float32, n)
	for i := range f {
		f[i] = 0.5
	}
	return f
}

func TestOnsetDebounce(t *testing.T) {
	// Two speech frames, one non-speech, two speech: never three-in-a-row.
	v := &scriptedVAD{script: []bool{true, true, false, true, true}}
	g := New(DefaultConfig(), v)

	for i := 0; i < 5; i++ {
		trig, err := g.ProcessFrame(loudFrame(480))
		if err != nil {
			t.Fatalf("ProcessFrame: %v", err)
		}
		if trig != TriggerNone {
			t.Fatalf("unexpected trigger at frame %d: %v", i, trig)
		}
		if g.State().IsSpeaking {
			t.Fatalf("IsSpeaking became true at frame %d, want false throughout", i)
		}
	}
}

func TestOnsetRequiresStrictlyConsecutiveFrames(t *testing.T) {
	v := &scriptedVAD{script: []bool{true, true, true}}
	g := New(DefaultConfig(), v)
	for i := 0; i < 2; i++ {
		g.ProcessFrame(loudFrame(480))
	}
	if g.State().IsSpeaking {
		t.Fatal("should not be speaking after only 2 consecutive frames with onset_threshold=3")
	}
	g.ProcessFrame(loudFrame(480))
	if !g.State().IsSpeaking {
		t.Fatal("should be speaking after 3 consecutive speech frames")
	}
}

func TestSilenceTailFinalizes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SilenceMs = 90 // 3 frames at 30ms
	cfg.PauseMs = 0
	script := []bool{true, true, true, false, false, false}
	v := &scriptedVAD{script: script}
	g := New(cfg, v)

	var lastTrig Trigger
	for range script {
		trig, _ := g.ProcessFrame(loudFrame(480))
		if trig != TriggerNone {
			lastTrig = trig
		}
	}
	if lastTrig != TriggerFinal {
		t.Fatalf("expected TriggerFinal after silence tail, got %v", lastTrig)
	}
}

func TestMaxSpeechMsFinalizesEvenIfStillSpeaking(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSpeechMs = 1 // effectively immediate once speaking
	v := &scriptedVAD{script: []bool{true, true, true, true}}
	g := New(cfg, v)
	g.now = func() time.Time { return time.Unix(0, 0) }

	// Drive onset.
	for i := 0; i < 3; i++ {
		g.ProcessFrame(loudFrame(480))
	}
	if !g.State().IsSpeaking {
		t.Fatal("expected speaking after onset")
	}
	// Advance the clock well past MaxSpeechMs while still "speaking".
	g.now = func() time.Time { return time.Unix(0, 0).Add(2 * time.Second) }
	trig, err := g.ProcessFrame(loudFrame(480))
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if trig != TriggerFinal {
		t.Fatalf("expected TriggerFinal at max duration, got %v", trig)
	}
}

func TestStreamingPauseThenFinal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PauseMs = 60    // 2 frames
	cfg.SilenceMs = 150 // 5 frames
	// onset (3 speech) + 2 silent (pause) + speech resets + 5 silent (final)
	script := []bool{true, true, true, false, false, true, false, false, false, false, false}
	v := &scriptedVAD{script: script}
	g := New(cfg, v)

	var triggers []Trigger
	for range script {
		trig, _ := g.ProcessFrame(loudFrame(480))
		if trig != TriggerNone {
			triggers = append(triggers, trig)
		}
	}
	if len(triggers) < 2 {
		t.Fatalf("expected at least a pause and a final trigger, got %v", triggers)
	}
	if triggers[0] != TriggerPause {
		t.Errorf("first trigger = %v, want TriggerPause", triggers[0])
	}
	if triggers[len(triggers)-1] != TriggerFinal {
		t.Errorf("last trigger = %v, want TriggerFinal", triggers[len(triggers)-1])
	}
}

func TestResetClearsState(t *testing.T) {
	v := &scriptedVAD{script: []bool{true, true, true}}
	g := New(DefaultConfig(), v)
	for i := 0; i < 3; i++ {
		g.ProcessFrame(loudFrame(480))
	}
	if !g.State().IsSpeaking {
		t.Fatal("expected speaking before reset")
	}
	g.Reset()
	if g.State().IsSpeaking || g.State().OnsetCount != 0 || len(g.State().Chunks) != 0 {
		t.Fatalf("state not cleared after Reset: %+v", g.State())
	}
}
