package types

// AudioSource identifies where transcription input comes from.
// Implementations: FileSource, BytesSource, URLSource.
type AudioSource interface {
	isAudioSource()
}

// FileSource streams audio from a local path. Existence is checked at dispatch.
type FileSource struct {
	Path string
}

func (FileSource) isAudioSource() {}

// BytesSource embeds in-memory audio under the given file name.
type BytesSource struct {
	FileName string
	Data     []byte
}

func (BytesSource) isAudioSource() {}

// URLSource points the provider at remotely hosted audio.
type URLSource struct {
	URL string
}

func (URLSource) isAudioSource() {}

func FromFile(path string) FileSource {
	return FileSource{Path: path}
}

func FromBytes(fileName string, data []byte) BytesSource {
	return BytesSource{FileName: fileName, Data: data}
}

func FromURL(url string) URLSource {
	return URLSource{URL: url}
}
