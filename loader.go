package vipsfit

// SourceLoader opens image handles from paths and buffers.
type SourceLoader struct {
	engine   Engine
	reporter *ErrorReporter
}

func NewSourceLoader(engine Engine, reporter *ErrorReporter) *SourceLoader {
	return &SourceLoader{engine: engine, reporter: reporter}
}

func (l *SourceLoader) OpenFile(path string) (*ImageHandle, error) {
	return l.openFile(path, nil)
}

// OpenFilePaginated opens a page window of a multi-page document.
func (l *SourceLoader) OpenFilePaginated(path string, pages PageRange) (*ImageHandle, error) {
	if err := validatePages(pages); err != nil {
		return nil, err
	}
	return l.openFile(path, &pages)
}

func (l *SourceLoader) OpenBuffer(buf []byte) (*ImageHandle, error) {
	return l.openBuffer(buf, nil)
}

func (l *SourceLoader) OpenBufferPaginated(buf []byte, pages PageRange) (*ImageHandle, error) {
	if err := validatePages(pages); err != nil {
		return nil, err
	}
	return l.openBuffer(buf, &pages)
}

func (l *SourceLoader) openFile(path string, pages *PageRange) (*ImageHandle, error) {
	if path == "" {
		return nil, newError(KindLoad, "empty path")
	}

	var img Image
	err := l.reporter.call(KindLoad, func() (err error) {
		img, err = l.engine.OpenFile(path, pages)
		return err
	})
	if err != nil {
		return nil, err
	}
	return newHandle(img, SourceFile(path), pages), nil
}

func (l *SourceLoader) openBuffer(buf []byte, pages *PageRange) (*ImageHandle, error) {
	if len(buf) == 0 {
		return nil, newError(KindLoad, "empty image buffer")
	}

	var img Image
	err := l.reporter.call(KindLoad, func() (err error) {
		img, err = l.engine.OpenBuffer(buf, pages)
		return err
	})
	if err != nil {
		return nil, err
	}
	return newHandle(img, SourceBuffer(buf), pages), nil
}

func validatePages(pages PageRange) error {
	if pages.First < 0 {
		return newError(KindParseInput, "page must not be negative: %d", pages.First)
	}
	return nil
}
