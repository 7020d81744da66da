package observe

import "strconv"

// Processor ids are small and stable, so the label set stays bounded.
func workerLabel(id int) string {
	return strconv.Itoa(id)
}
