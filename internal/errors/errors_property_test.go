//go:build property

package errors

import (
	"fmt"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestErrorCollectorProperties validates error collection and aggregation properties
func TestErrorCollectorProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(2468)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	// Property: Error collector should handle concurrent error addition safely
	properties.Property("concurrent error addition is thread-safe", prop.ForAll(
		func(goroutineCount int, errorsPerGoroutine int) bool {
			collector := NewErrorCollector()

			var wg sync.WaitGroup
			for g := 0; g < goroutineCount; g++ {
				wg.Add(1)
				go func(goroutineID int) {
					defer wg.Done()
					for e := 0; e < errorsPerGoroutine; e++ {
						collector.Add(fmt.Sprintf("task_%d", goroutineID),
							NewCompileError(ErrCodeStyleCompile, fmt.Sprintf("error %d", e), nil))
					}
				}(g)
			}
			wg.Wait()

			return len(collector.Failures()) == goroutineCount*errorsPerGoroutine
		},
		gen.IntRange(1, 20),
		gen.IntRange(1, 50),
	))

	// Property: failures are always reported in task order
	properties.Property("failures are sorted by task", prop.ForAll(
		func(tasks []string) bool {
			collector := NewErrorCollector()
			for _, task := range tasks {
				collector.Add(task, NewIOError(ErrCodeReadFailed, "read", nil))
			}

			failures := collector.Failures()
			for i := 1; i < len(failures); i++ {
				if failures[i-1].Task > failures[i].Task {
					return false
				}
			}
			return len(failures) == len(tasks)
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

// TestErrorFormattingProperties validates location rendering
func TestErrorFormattingProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("location appears in the message", prop.ForAll(
		func(file string, line, column int) bool {
			err := NewCompileError(ErrCodeTemplate, "bad", nil).WithLocation(file, line, column)
			return err.Error() == fmt.Sprintf("[%s] %s:%d:%d bad", ErrCodeTemplate, file, line, column)
		},
		gen.Identifier(),
		gen.IntRange(1, 10000),
		gen.IntRange(1, 500),
	))

	properties.TestingRun(t)
}
