package errors

import "sync"

// Error Code Format: AABBCCC (7 digits)
//
//   - AA:  Service code (00-99)
//   - BB:  Category code (00-99)
//   - CCC: Sequence number (000-999)
const (
	// ServiceCommon is for errors shared by every component.
	ServiceCommon = 0

	// ServiceDocQA is for the document ingestion and chat service.
	ServiceDocQA = 21
)

// Category codes (BB)
const (
	// CategoryRequest indicates request/validation errors.
	CategoryRequest = 1

	// CategoryResource indicates resource not found errors.
	CategoryResource = 4

	// CategoryConflict indicates resource conflict errors.
	CategoryConflict = 5

	// CategoryInternal indicates internal server errors.
	CategoryInternal = 7

	// CategoryDatabase indicates database errors.
	CategoryDatabase = 8

	// CategoryNetwork indicates upstream and network errors.
	CategoryNetwork = 10

	// CategoryTimeout indicates timeout errors.
	CategoryTimeout = 11

	// CategoryConfig indicates configuration errors.
	CategoryConfig = 12
)

// MakeCode creates an error code from service, category, and sequence.
func MakeCode(service, category, sequence int) int {
	return service*100000 + category*1000 + sequence
}

// ParseCode parses an error code into service, category, and sequence.
func ParseCode(code int) (service, category, sequence int) {
	return code / 100000, (code % 100000) / 1000, code % 1000
}

// IsClientError checks if the error code belongs to a client error category.
func IsClientError(code int) bool {
	_, category, _ := ParseCode(code)
	return category >= CategoryRequest && category <= CategoryConflict
}

// IsServerError checks if the error code belongs to a server error category.
func IsServerError(code int) bool {
	_, category, _ := ParseCode(code)
	return category >= CategoryInternal && category <= CategoryConfig
}

var (
	serviceNames = map[int]string{ServiceCommon: "common"}
	serviceMu    sync.RWMutex
)

// RegisterService names a service code for logs and diagnostics.
func RegisterService(code int, name string) {
	serviceMu.Lock()
	defer serviceMu.Unlock()
	serviceNames[code] = name
}

// GetServiceName returns the registered name of the service owning code.
func GetServiceName(code int) string {
	service, _, _ := ParseCode(code)
	serviceMu.RLock()
	defer serviceMu.RUnlock()
	if name, ok := serviceNames[service]; ok {
		return name
	}
	return "unknown"
}
