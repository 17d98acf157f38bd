package vipsfit

import (
	"github.com/hashicorp/go-hclog"
)

type PipelineConfig struct {
	Engine Engine
	Logger hclog.Logger

	// Concurrency overrides the initial engine worker count. Nil means one
	// worker per logical CPU. Only the first pipeline built on an engine
	// applies it.
	Concurrency *int
}

// Pipeline composes loading, fit-resizing and encoding. Each call is an
// independent unit of work; a Pipeline is safe for concurrent use.
type Pipeline struct {
	conf *PipelineConfig

	reporter    *ErrorReporter
	loader      *SourceLoader
	resizer     *FitResizer
	dispatcher  *FormatDispatcher
	concurrency *ConcurrencyController
}

func NewPipeline(conf PipelineConfig) (*Pipeline, error) {
	if conf.Engine == nil {
		return nil, newError(KindParseInput, "no engine configured")
	}
	if conf.Logger == nil {
		conf.Logger = hclog.NewNullLogger()
	}

	reporter := NewErrorReporter(conf.Engine)
	p := &Pipeline{
		conf:        &conf,
		reporter:    reporter,
		loader:      NewSourceLoader(conf.Engine, reporter),
		resizer:     NewFitResizer(conf.Engine, reporter),
		dispatcher:  NewFormatDispatcher(conf.Engine, reporter),
		concurrency: controllerFor(conf.Engine),
	}
	p.concurrency.Init(conf.Concurrency)
	conf.Logger.Debug("Pipeline ready", "concurrency", p.concurrency.Get())
	return p, nil
}

func (p *Pipeline) ProcessFileToFile(req ImageFileRequest) error {
	pages, err := req.validate(true)
	if err != nil {
		return err
	}
	h, err := p.openFile(req.Path, pages)
	if err != nil {
		p.conf.Logger.Error("Failed to open image", "path", req.Path, "error", err)
		return err
	}
	h, err = p.fit(h, req.Resize)
	if err != nil {
		return err
	}
	defer h.Close()

	err = p.dispatcher.EncodeToPath(h, req.Save.Path, req.Save.spec())
	if err != nil {
		p.conf.Logger.Error("Failed to save image", "path", req.Save.Path, "error", err)
		return err
	}
	p.conf.Logger.Debug("Processed", "src", req.Path, "dst", req.Save.Path)
	return nil
}

// Output is an encoded image together with the format it was encoded as.
type Output struct {
	Bytes  []byte
	Format Format
}

func (p *Pipeline) ProcessFileToBytes(req ImageFileRequest) ([]byte, error) {
	out, err := p.ProcessFile(req)
	return out.Bytes, err
}

// ProcessFile is ProcessFileToBytes, also reporting the output format when
// Save.Format is auto.
func (p *Pipeline) ProcessFile(req ImageFileRequest) (Output, error) {
	pages, err := req.validate(false)
	if err != nil {
		return Output{}, err
	}
	h, err := p.openFile(req.Path, pages)
	if err != nil {
		p.conf.Logger.Error("Failed to open image", "path", req.Path, "error", err)
		return Output{}, err
	}
	return p.encode(h, req.Resize, req.Save)
}

func (p *Pipeline) ProcessBytesToBytes(req ImageBytesRequest) ([]byte, error) {
	out, err := p.ProcessBytes(req)
	return out.Bytes, err
}

func (p *Pipeline) ProcessBytes(req ImageBytesRequest) (Output, error) {
	pages, err := req.validate(false)
	if err != nil {
		return Output{}, err
	}
	h, err := p.openBuffer(req.Bytes, pages)
	if err != nil {
		p.conf.Logger.Error("Failed to open image", "size", len(req.Bytes), "error", err)
		return Output{}, err
	}
	return p.encode(h, req.Resize, req.Save)
}

func (p *Pipeline) ProcessBytesToFile(req ImageBytesRequest) error {
	pages, err := req.validate(true)
	if err != nil {
		return err
	}
	h, err := p.openBuffer(req.Bytes, pages)
	if err != nil {
		p.conf.Logger.Error("Failed to open image", "size", len(req.Bytes), "error", err)
		return err
	}
	h, err = p.fit(h, req.Resize)
	if err != nil {
		return err
	}
	defer h.Close()

	err = p.dispatcher.EncodeToPath(h, req.Save.Path, req.Save.spec())
	if err != nil {
		p.conf.Logger.Error("Failed to save image", "path", req.Save.Path, "error", err)
		return err
	}
	p.conf.Logger.Debug("Processed", "size", len(req.Bytes), "dst", req.Save.Path)
	return nil
}

// ImageSizes returns the width and height of the image at path.
func (p *Pipeline) ImageSizes(path string) (int, int, error) {
	h, err := p.loader.OpenFile(path)
	if err != nil {
		return 0, 0, err
	}
	defer h.Close()
	return h.Width(), h.Height(), nil
}

func (p *Pipeline) ImageBytesSizes(buf []byte) (int, int, error) {
	h, err := p.loader.OpenBuffer(buf)
	if err != nil {
		return 0, 0, err
	}
	defer h.Close()
	return h.Width(), h.Height(), nil
}

// ImageFileFormat returns the codec detected for the image at path.
func (p *Pipeline) ImageFileFormat(path string) (Format, error) {
	h, err := p.loader.OpenFile(path)
	if err != nil {
		return FormatUnknown, err
	}
	defer h.Close()
	return h.Format(), nil
}

func (p *Pipeline) ImageBytesFormat(buf []byte) (Format, error) {
	h, err := p.loader.OpenBuffer(buf)
	if err != nil {
		return FormatUnknown, err
	}
	defer h.Close()
	return h.Format(), nil
}

// SetConcurrency adjusts the engine's worker count for operations started
// after the call.
func (p *Pipeline) SetConcurrency(n uint8) {
	p.concurrency.Set(int(n))
	p.conf.Logger.Info("Concurrency set", "n", p.concurrency.Get())
}

func (p *Pipeline) Concurrency() int {
	return p.concurrency.Get()
}

func (p *Pipeline) openFile(path string, pages *PageRange) (*ImageHandle, error) {
	if pages != nil {
		return p.loader.OpenFilePaginated(path, *pages)
	}
	return p.loader.OpenFile(path)
}

func (p *Pipeline) openBuffer(buf []byte, pages *PageRange) (*ImageHandle, error) {
	if pages != nil {
		return p.loader.OpenBufferPaginated(buf, *pages)
	}
	return p.loader.OpenBuffer(buf)
}

// fit consumes h and returns the handle to encode.
func (p *Pipeline) fit(h *ImageHandle, opts ResizeOptions) (*ImageHandle, error) {
	sw, sh := h.Width(), h.Height()
	out, err := p.resizer.Apply(h, opts.spec())
	if err != nil {
		p.conf.Logger.Error("Failed to fit image", "width", opts.Width, "height", opts.Height, "error", err)
		return nil, err
	}
	p.conf.Logger.Trace("Fit", "from", [2]int{sw, sh}, "to", [2]int{out.Width(), out.Height()})
	return out, nil
}

func (p *Pipeline) encode(h *ImageHandle, resize ResizeOptions, save SaveOptions) (Output, error) {
	h, err := p.fit(h, resize)
	if err != nil {
		return Output{}, err
	}
	defer h.Close()

	out, f, err := p.dispatcher.encode(h, save.spec())
	if err != nil {
		p.conf.Logger.Error("Failed to encode image", "format", save.Format, "error", err)
		return Output{}, err
	}
	return Output{Bytes: out, Format: f}, nil
}
