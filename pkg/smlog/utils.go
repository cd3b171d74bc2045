package smlog

import (
	"io"
	"os"
	"reflect"
)

// GetPointer returns the memory address of the given value as an unsigned integer.
// It is used to tell apart connection and client objects in debug logs.
func GetPointer(value any) uint {
	ptr := reflect.ValueOf(value).Pointer()
	return uint(ptr)
}

// newWriter creates a new file writer based on the provided filepath.
// If the filepath is empty, it returns os.Stdout as the writer.
// Otherwise, it opens the file in append mode, creating it if needed.
//
// Parameters:
//   - filepath: The path to the file where the data will be written.
//
// Returns:
//   - *os.File: The opened file, nil for stdout.
//   - io.Writer: The writer that writes the data to the file.
//   - error: An error if any error occurs during the file operations.
func newWriter(filepath string) (*os.File, io.Writer, error) {
	if filepath == "" {
		return nil, os.Stdout, nil
	}
	f, err := os.OpenFile(filepath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, err
	}
	return f, f, nil
}
