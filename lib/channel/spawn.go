package channel

import (
	"fmt"

	"github.com/snowmerak/presentation.go/lib/process"
)

// Spawn starts a host binary and returns a Stream over its stdin and stdout.
// Closing the stream stops the process.
func Spawn(path string, args []string, opts ...Option) (*Stream, error) {
	p, err := process.Spawn(path, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to spawn host: %w", err)
	}

	o := buildOptions(opts)
	o.logger.Debug().Str("path", path).Int("pid", p.Pid()).Msg("host started")

	s := NewStream(p.Stdout(), p.Stdin(), opts...)
	s.closer = hostProcess{p}
	return s, nil
}

type hostProcess struct {
	*process.Process
}

func (h hostProcess) Close() error {
	err := h.Process.Close()
	// A killed child reports an error from Wait; only reaping matters here.
	_ = h.Wait()
	return err
}

