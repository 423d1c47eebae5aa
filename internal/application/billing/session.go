package billing

import (
	"context"
	"errors"
	"time"

	"github.com/jhoicas/nfe-api/internal/domain"
)

// ProcessorSession dueño exclusivo de un DocumentProcessor. Serializa las
// secuencias load → sign → validate → submit → clear para que ninguna pise
// el documento cargado por otra. Sesiones distintas no comparten nada.
type ProcessorSession struct {
	proc    DocumentProcessor
	slot    chan struct{}
	timeout time.Duration
	metrics Metrics
}

// NewProcessorSession timeout limita cada secuencia (0 = solo el ctx del llamador).
func NewProcessorSession(proc DocumentProcessor, timeout time.Duration, metrics Metrics) *ProcessorSession {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &ProcessorSession{
		proc:    proc,
		slot:    make(chan struct{}, 1),
		timeout: timeout,
		metrics: metrics,
	}
}

// Do toma el espacio de trabajo, ejecuta fn y siempre limpia al final.
// Esperar el turno respeta la cancelación del ctx. Los errores que fn marca
// con keep salen tal cual, sin ProcessorError.
func (s *ProcessorSession) Do(ctx context.Context, op string, fn func(ctx context.Context, p DocumentProcessor) error) error {
	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		return processorError(op, ctx.Err())
	}
	defer func() { <-s.slot }()

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(callCtx, s.proc)
	var st stateError
	isState := errors.As(err, &st)
	if isState {
		s.metrics.ProcessorCall(op, time.Since(start), nil)
	} else {
		s.metrics.ProcessorCall(op, time.Since(start), err)
	}

	// Clear usa un contexto propio: el slot debe quedar vacío aunque el
	// llamador ya haya cancelado.
	clearCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if cerr := s.proc.Clear(clearCtx); cerr != nil && err == nil {
		err = processorError("clear", cerr)
	}
	switch {
	case err == nil:
		return nil
	case isState:
		return st.err
	}
	return processorError(op, err)
}

// stateError error del registro o del repositorio producido dentro de Do;
// se devuelve sin envolver como fallo del procesador.
type stateError struct{ err error }

func (e stateError) Error() string { return e.err.Error() }
func (e stateError) Unwrap() error { return e.err }

// keep marca err como stateError.
func keep(err error) error {
	if err == nil {
		return nil
	}
	return stateError{err: err}
}

// processorError conserva el diagnóstico original; los deadline pasan a ErrTimeout.
func processorError(op string, err error) error {
	var pe *domain.ProcessorError
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrTimeout) {
		err = errors.Join(domain.ErrTimeout, err)
	}
	return &domain.ProcessorError{Op: op, Err: err}
}
