// Package scanner feeds barcode reads into the inventory search.
package scanner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/mmynk/pharmasupps/internal/models"
	"github.com/mmynk/pharmasupps/internal/notify"
)

// Facing selects which camera a video decoder should use.
type Facing string

const (
	FacingEnvironment Facing = "environment"
	FacingUser        Facing = "user"
)

// ErrStopped is returned by Decode after Reset.
var ErrStopped = errors.New("scanner stopped")

// Decoder reports decoded barcodes until Reset is called or ctx ends.
type Decoder interface {
	Decode(ctx context.Context, facing Facing, onResult func(code string)) error
	Reset()
}

// LineDecoder reads one barcode per line. USB keyboard-wedge scanners type
// the code followed by Enter, so pointing it at the device or stdin works.
type LineDecoder struct {
	r io.Reader

	mu    sync.Mutex
	stop  chan struct{}
	reset bool
}

// NewLineDecoder creates a decoder over r.
func NewLineDecoder(r io.Reader) *LineDecoder {
	return &LineDecoder{r: r}
}

// Decode scans lines and calls onResult for every non-blank one. The facing
// is ignored. It returns nil at end of input.
func (d *LineDecoder) Decode(ctx context.Context, _ Facing, onResult func(string)) error {
	d.mu.Lock()
	if d.stop != nil {
		d.mu.Unlock()
		return errors.New("scanner already decoding")
	}
	stop := make(chan struct{})
	d.stop = stop
	d.reset = false
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.stop = nil
		d.mu.Unlock()
	}()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(d.r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return ErrStopped
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("failed to read scanner input: %w", err)
					}
				default:
				}
				if d.stopped() {
					return ErrStopped
				}
				return nil
			}
			if code := strings.TrimSpace(line); code != "" {
				onResult(code)
			}
		}
	}
}

// Reset stops a running Decode.
func (d *LineDecoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil && !d.reset {
		d.reset = true
		close(d.stop)
	}
}

func (d *LineDecoder) stopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reset
}

// Catalog is the part of the inventory a scan session needs.
type Catalog interface {
	LookupBarcode(code string) (models.Supplement, bool)
	SetSearch(term string)
}

// Session connects a Decoder to the catalog: a known barcode becomes the
// search term, an unknown one raises a warning.
type Session struct {
	decoder  Decoder
	catalog  Catalog
	notifier notify.Notifier
	logger   *slog.Logger
	facing   Facing
}

// NewSession creates a Session using the environment-facing camera.
func NewSession(decoder Decoder, catalog Catalog, notifier notify.Notifier, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		decoder:  decoder,
		catalog:  catalog,
		notifier: notifier,
		logger:   logger,
		facing:   FacingEnvironment,
	}
}

// Start decodes until Stop, ctx cancellation, or end of input.
func (s *Session) Start(ctx context.Context) error {
	s.logger.Info("Scanner started", "facing", s.facing)
	err := s.decoder.Decode(ctx, s.facing, s.handle)
	if errors.Is(err, ErrStopped) || errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		s.logger.Error("Scanner failed", "error", err)
		s.notifier.Notify(notify.Error, "Barcode scanner failed")
	}
	s.logger.Info("Scanner stopped")
	return err
}

// Stop resets the decoder.
func (s *Session) Stop() {
	s.decoder.Reset()
}

func (s *Session) handle(code string) {
	item, ok := s.catalog.LookupBarcode(code)
	if !ok {
		s.logger.Warn("Unknown barcode scanned", "barcode", code)
		s.notifier.Notify(notify.Warning, fmt.Sprintf("No supplement found for barcode %s", code))
		return
	}
	s.catalog.SetSearch(code)
	s.logger.Info("Barcode scanned", "barcode", code, "id", item.ID)
	s.notifier.Notify(notify.Info, fmt.Sprintf("Found %s", item.Name))
}
