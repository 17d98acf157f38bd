package vipsfit

type ResizeOptions struct {
	Width      int32      `json:"width" toml:"width"`
	Height     int32      `json:"height" toml:"height"`
	ResizeType ResizeType `json:"resize_type" toml:"resize_type"`
}

type SaveOptions struct {
	Quality     uint8     `json:"quality" toml:"quality"`
	Strip       bool      `json:"strip" toml:"strip"`
	Path        string    `json:"path" toml:"path"`
	Format      Format    `json:"format" toml:"format"`
	Compression uint8     `json:"compression" toml:"compression"`
	Background  []float64 `json:"background" toml:"background"`
}

type ImageFileRequest struct {
	Path        string        `json:"path" toml:"path"`
	Resize      ResizeOptions `json:"resize" toml:"resize"`
	Save        SaveOptions   `json:"save" toml:"save"`
	IsPaginated bool          `json:"is_paginated" toml:"is_paginated"`
	Page        int32         `json:"page" toml:"page"`
	PageCount   int32         `json:"page_count" toml:"page_count"`
}

type ImageBytesRequest struct {
	Bytes       []byte        `json:"bytes" toml:"bytes"`
	Resize      ResizeOptions `json:"resize" toml:"resize"`
	Save        SaveOptions   `json:"save" toml:"save"`
	IsPaginated bool          `json:"is_paginated" toml:"is_paginated"`
	Page        int32         `json:"page" toml:"page"`
	PageCount   int32         `json:"page_count" toml:"page_count"`
}

func (o ResizeOptions) spec() ResizeSpec {
	return ResizeSpec{Width: int(o.Width), Height: int(o.Height), Type: o.ResizeType}
}

func (o SaveOptions) spec() SaveSpec {
	return SaveSpec{
		Quality:     o.Quality,
		Strip:       o.Strip,
		Compression: o.Compression,
		Background:  o.Background,
		Format:      o.Format,
	}
}

func (o ResizeOptions) validate() error {
	if o.Width < 0 || o.Height < 0 {
		return newError(KindParseInput, "negative target size %dx%d", o.Width, o.Height)
	}
	return nil
}

func (o SaveOptions) validate(needPath bool) error {
	if o.Quality > 100 {
		return newError(KindParseInput, "quality out of range: %d", o.Quality)
	}
	if o.Compression > 9 {
		return newError(KindParseInput, "compression out of range: %d", o.Compression)
	}
	if needPath && o.Path == "" {
		return newError(KindParseInput, "missing output path")
	}
	return nil
}

func pageRange(paginated bool, page, count int32) (*PageRange, error) {
	if !paginated {
		return nil, nil
	}
	if page < 0 {
		return nil, newError(KindParseInput, "page must not be negative: %d", page)
	}
	return &PageRange{First: int(page), Count: int(count)}, nil
}

func (r ImageFileRequest) validate(needPath bool) (*PageRange, error) {
	if r.Path == "" {
		return nil, newError(KindParseInput, "missing source path")
	}
	if err := r.Resize.validate(); err != nil {
		return nil, err
	}
	if err := r.Save.validate(needPath); err != nil {
		return nil, err
	}
	return pageRange(r.IsPaginated, r.Page, r.PageCount)
}

func (r ImageBytesRequest) validate(needPath bool) (*PageRange, error) {
	if len(r.Bytes) == 0 {
		return nil, newError(KindParseInput, "missing source bytes")
	}
	if err := r.Resize.validate(); err != nil {
		return nil, err
	}
	if err := r.Save.validate(needPath); err != nil {
		return nil, err
	}
	return pageRange(r.IsPaginated, r.Page, r.PageCount)
}
