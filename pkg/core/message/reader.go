package message

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// maxLineSize - максимальный размер одной строки входа (64 MB).
// Записи с большими вложенными объектами не должны рвать поток.
const maxLineSize = 64 * 1024 * 1024

// ParseError - некорректная строка входа. Отличается от ошибок
// ввода-вывода: потребитель может отклонить строку и читать дальше.
type ParseError struct {
	Line int
	Raw  string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Source - источник событий входного протокола.
// Next возвращает io.EOF после последнего события.
type Source interface {
	Next(ctx context.Context) (*Message, error)
	Close() error
}

// Reader читает события из io.Reader построчно (JSON Lines).
// Пустые строки пропускаются.
type Reader struct {
	scanner *bufio.Scanner
	closers []io.Closer
	line    int
}

// NewReader создает Reader поверх произвольного io.Reader
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	return &Reader{scanner: scanner}
}

// OpenFile открывает файл входного потока.
// Файлы *.gz и *.zst распаковываются прозрачно.
func OpenFile(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}

	var src io.Reader = f
	closers := []io.Closer{f}

	switch {
	case strings.HasSuffix(path, ".gz"):
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to open gzip input: %w", err)
		}
		src = gz
		closers = append(closers, gz)
	case strings.HasSuffix(path, ".zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to open zstd input: %w", err)
		}
		src = zr.IOReadCloser()
	}

	reader := NewReader(src)
	reader.closers = closers
	return reader, nil
}

// Next возвращает следующее событие потока
func (r *Reader) Next(ctx context.Context) (*Message, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				return nil, fmt.Errorf("input read failed at line %d: %w", r.line, err)
			}
			return nil, io.EOF
		}
		r.line++

		line := bytes.TrimSpace(r.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		msg, err := Parse(line)
		if err != nil {
			return nil, &ParseError{Line: r.line, Raw: string(line), Err: err}
		}
		return msg, nil
	}
}

// Close закрывает нижележащие ресурсы
func (r *Reader) Close() error {
	var firstErr error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
