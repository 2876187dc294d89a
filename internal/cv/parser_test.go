package cv

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"cv-retrieval/internal/domain"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapses spaces", "Senior    Go   Engineer", "Senior Go Engineer"},
		{"trims lines", "  EXPERIENCE  \n   Acme Corp   ", "EXPERIENCE\nAcme Corp"},
		{"caps blank lines", "Summary\n\n\n\n\nSkills", "Summary\n\nSkills"},
		{"strips control and non-ascii", "Go\x00lang\x07 devé\r\n", "Golang dev"},
		{"keeps tabs inside lines", "a\tb", "a\tb"},
		{"whitespace only", " \n\n \t \n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"plain",
		"  lead \n\n\n\n trail  ",
		"tab\t \t mix \n \n \n x",
		"\x01\x02  \n\n\n  ☃ snow  man \n",
		"Line one.  \n  \n  \n  \n Line two.\t\t",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestExtract_UnsupportedFormat(t *testing.T) {
	p := NewParser(time.Second, zaptest.NewLogger(t))
	_, err := p.Extract(context.Background(), []byte("data"), domain.DocumentKind("odt"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnsupportedFormat))
	assert.False(t, errors.Is(err, domain.ErrProvider))
}

func TestExtract_CorruptDocx(t *testing.T) {
	p := NewParser(time.Second, zaptest.NewLogger(t))
	_, err := p.Extract(context.Background(), []byte("definitely not a zip archive"), domain.KindDOCX)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrExtractionFailed))
}

func TestExtract_EmptyBlob(t *testing.T) {
	p := NewParser(time.Second, nil)
	_, err := p.Extract(context.Background(), nil, domain.KindPDF)
	assert.True(t, errors.Is(err, domain.ErrExtractionFailed))
}

func TestExtract_NormalizesConverterOutput(t *testing.T) {
	p := NewParser(time.Second, nil)
	p.converters[domain.KindPDF] = func(r *bytes.Reader) (string, map[string]string, error) {
		return "  Jane   Doe \n\n\n\nSKILLS\n Go ", nil, nil
	}

	text, err := p.Extract(context.Background(), []byte("%PDF"), domain.KindPDF)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe\n\nSKILLS\nGo", text)
}

func TestExtract_Timeout(t *testing.T) {
	p := NewParser(20*time.Millisecond, nil)
	release := make(chan struct{})
	defer close(release)
	p.converters[domain.KindPDF] = func(r *bytes.Reader) (string, map[string]string, error) {
		<-release
		return "late", nil, nil
	}

	_, err := p.Extract(context.Background(), []byte("%PDF"), domain.KindPDF)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrExtractionFailed))
}

func TestExtract_ConverterPanicIsExtractionFailure(t *testing.T) {
	p := NewParser(time.Second, nil)
	p.converters[domain.KindDOCX] = func(r *bytes.Reader) (string, map[string]string, error) {
		panic("bad xml")
	}

	_, err := p.Extract(context.Background(), []byte("PK"), domain.KindDOCX)
	assert.True(t, errors.Is(err, domain.ErrExtractionFailed))
}
