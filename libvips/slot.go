package libvips

// #cgo pkg-config: vips
// #include <vips/vips.h>
import "C"

// readAndClearError drains libvips' process-wide error buffer.
func readAndClearError() string {
	msg := C.GoString(C.vips_error_buffer())
	C.vips_error_clear()
	return msg
}

func setConcurrency(n int) {
	C.vips_concurrency_set(C.int(n))
}

func version() string {
	return C.GoString(C.vips_version_string())
}
