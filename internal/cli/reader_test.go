package cli

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineReader_ReadLine(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "single line", input: "a\n", want: []string{"a"}},
		{name: "trims whitespace", input: "  Mercado  \n", want: []string{"Mercado"}},
		{name: "blank line", input: "\n", want: []string{""}},
		{name: "several lines", input: "1\n2\r\n3\n", want: []string{"1", "2", "3"}},
		{name: "final line without newline", input: "first\nlast", want: []string{"first", "last"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewLineReader(strings.NewReader(tt.input))
			ctx := context.Background()

			for _, want := range tt.want {
				got, err := r.ReadLine(ctx)
				require.NoError(t, err)
				assert.Equal(t, want, got)
			}
			_, err := r.ReadLine(ctx)
			assert.ErrorIs(t, err, io.EOF)

			_, err = r.ReadLine(ctx)
			assert.ErrorIs(t, err, io.EOF, "EOF is sticky")
		})
	}
}

func TestLineReader_Cancellation(t *testing.T) {
	t.Run("already canceled", func(t *testing.T) {
		r := NewLineReader(strings.NewReader("ignored\n"))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := r.ReadLine(ctx)
		assert.ErrorIs(t, err, ErrInputCancelled)
	})

	t.Run("canceled while waiting keeps the late line", func(t *testing.T) {
		pr, pw := io.Pipe()
		t.Cleanup(func() { _ = pw.Close() })
		r := NewLineReader(pr)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := r.ReadLine(ctx)
		assert.ErrorIs(t, err, ErrInputCancelled)

		go func() { _, _ = pw.Write([]byte("late\n")) }()

		line, err := r.ReadLine(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "late", line)
	})
}
