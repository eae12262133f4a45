package vad

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	// sileroWindowSize is the number of float32 samples Silero VAD v5
	// expects per inference call at 16 kHz (32 ms).
	sileroWindowSize = 512
	sileroStateSize  = 128
)

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// SileroBackend runs Silero VAD v5 inference through ONNX Runtime. It
// buffers incoming frames into 512-sample windows (Silero's native window),
// so a single IsSpeech call may run zero, one, or several inferences
// depending on how many bytes have accumulated; the returned verdict is the
// most recent window's classification, or the prior one if no window
// completed yet.
type SileroBackend struct {
	mu sync.Mutex

	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	stateTensor  *ort.Tensor[float32]
	srTensor     *ort.Tensor[int64]
	outputTensor *ort.Tensor[float32]
	stateNTensor *ort.Tensor[float32]

	pcmBuf    []float32
	threshold float64
	lastVote  bool
}

// NewSileroBackend loads the Silero ONNX model from modelPath and prepares
// an inference session. threshold is the speech-probability cutoff (Silero's
// own docs suggest 0.5 as a reasonable default).
func NewSileroBackend(ortLibPath, modelPath string, threshold float64) (*SileroBackend, error) {
	ortInitOnce.Do(func() {
		if ortLibPath != "" {
			ort.SetSharedLibraryPath(ortLibPath)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, fmt.Errorf("silero: init onnxruntime: %w", ortInitErr)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, sileroWindowSize))
	if err != nil {
		return nil, fmt.Errorf("silero: input tensor: %w", err)
	}
	stateTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, sileroStateSize))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("silero: state tensor: %w", err)
	}
	srTensor, err := ort.NewTensor(ort.NewShape(1), []int64{16000})
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		return nil, fmt.Errorf("silero: sample-rate tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		return nil, fmt.Errorf("silero: output tensor: %w", err)
	}
	stateNTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, sileroStateSize))
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("silero: stateN tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		[]ort.Value{inputTensor, stateTensor, srTensor},
		[]ort.Value{outputTensor, stateNTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		outputTensor.Destroy()
		stateNTensor.Destroy()
		return nil, fmt.Errorf("silero: create session: %w", err)
	}

	return &SileroBackend{
		session:      session,
		inputTensor:  inputTensor,
		stateTensor:  stateTensor,
		srTensor:     srTensor,
		outputTensor: outputTensor,
		stateNTensor: stateNTensor,
		pcmBuf:       make([]float32, 0, sileroWindowSize*2),
		threshold:    threshold,
	}, nil
}

func (b *SileroBackend) IsSpeech(pcm16 []byte, sampleRate int) (bool, error) {
	if sampleRate != 16000 {
		return false, fmt.Errorf("silero: expects 16kHz input, got %d", sampleRate)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.pcmBuf = append(b.pcmBuf, pcm16ToFloat32(pcm16)...)
	for len(b.pcmBuf) >= sileroWindowSize {
		prob, err := b.infer(b.pcmBuf[:sileroWindowSize])
		if err != nil {
			return false, err
		}
		b.pcmBuf = b.pcmBuf[sileroWindowSize:]
		b.lastVote = float64(prob) >= b.threshold
	}
	return b.lastVote, nil
}

func (b *SileroBackend) infer(window []float32) (float32, error) {
	copy(b.inputTensor.GetData(), window)
	if err := b.session.Run(); err != nil {
		return 0, fmt.Errorf("silero: inference: %w", err)
	}
	prob := b.outputTensor.GetData()[0]
	copy(b.stateTensor.GetData(), b.stateNTensor.GetData())
	return prob, nil
}

func (b *SileroBackend) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.stateTensor.GetData() {
		b.stateTensor.GetData()[i] = 0
	}
	b.pcmBuf = b.pcmBuf[:0]
	b.lastVote = false
}

// Close releases the ONNX Runtime session and tensors. Safe to call once.
func (b *SileroBackend) Close() {
	b.session.Destroy()
	b.inputTensor.Destroy()
	b.stateTensor.Destroy()
	b.srTensor.Destroy()
	b.outputTensor.Destroy()
	b.stateNTensor.Destroy()
}

func pcm16ToFloat32(pcm16 []byte) []float32 {
	n := len(pcm16) / 2
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		u := uint16(pcm16[2*i]) | uint16(pcm16[2*i+1])<<8
		samples[i] = float32(int16(u)) / 32768.0
	}
	return samples
}
