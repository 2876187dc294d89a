package cv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"code.sajari.com/docconv"
	"go.uber.org/zap"

	"cv-retrieval/internal/domain"
	"cv-retrieval/internal/logger"
)

// DefaultTimeout bounds a single extraction when the caller sets none.
const DefaultTimeout = 60 * time.Second

// converter turns a document body into raw text. docconv's ConvertPDF and
// ConvertDocx both fit this shape.
type converter func(r *bytes.Reader) (string, map[string]string, error)

// Parser extracts normalized plain text from PDF and DOCX resumes.
type Parser struct {
	timeout    time.Duration
	converters map[domain.DocumentKind]converter
	log        *zap.Logger
}

func NewParser(timeout time.Duration, log *zap.Logger) *Parser {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Parser{
		timeout: timeout,
		converters: map[domain.DocumentKind]converter{
			domain.KindPDF: func(r *bytes.Reader) (string, map[string]string, error) {
				return docconv.ConvertPDF(r)
			},
			domain.KindDOCX: func(r *bytes.Reader) (string, map[string]string, error) {
				return docconv.ConvertDocx(r)
			},
		},
		log: logger.OrNop(log).Named("cv"),
	}
}

// Extract converts blob to normalized text.
//
// Kinds other than pdf and docx fail with ErrUnsupportedFormat. Corrupt
// blobs, converter errors and timeouts fail with ErrExtractionFailed so the
// pipeline retries them.
func (p *Parser) Extract(ctx context.Context, blob []byte, kind domain.DocumentKind) (string, error) {
	convert, ok := p.converters[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, kind)
	}
	if len(blob) == 0 {
		return "", fmt.Errorf("%w: empty document", domain.ErrExtractionFailed)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("converter panic: %v", r)}
			}
		}()
		text, _, err := convert(bytes.NewReader(blob))
		done <- result{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			p.log.Warn("extraction timed out", zap.String("kind", string(kind)), zap.Duration("timeout", p.timeout))
		}
		return "", fmt.Errorf("%w: %v", domain.ErrExtractionFailed, ctx.Err())
	case res := <-done:
		if res.err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrExtractionFailed, res.err)
		}
		text := Normalize(res.text)
		p.log.Debug("extracted document", zap.String("kind", string(kind)), zap.Int("chars", len(text)))
		return text, nil
	}
}
