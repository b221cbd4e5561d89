package data

import (
	"path"
	"strings"
)

type ContentType string

const (
	ContentTypeTextPlain         ContentType = "text/plain"
	ContentTypeTextProperties    ContentType = "text/x-java-properties"
	ContentTypeImagePNG          ContentType = "image/png"
	ContentTypeImageJPEG         ContentType = "image/jpeg"
	ContentTypeImageGIF          ContentType = "image/gif"
	ContentTypeAudioOGG          ContentType = "audio/ogg"
	ContentTypeAudioWAV          ContentType = "audio/wav"
	ContentTypeAudioMpeg         ContentType = "audio/mpeg"
	ContentTypeApplicationJson   ContentType = "application/json"
	ContentTypeApplicationXML    ContentType = "application/xml"
	ContentTypeApplicationZip    ContentType = "application/zip"
	ContentTypeApplicationJar    ContentType = "application/java-archive"
	ContentTypeApplicationStream ContentType = "application/octet-stream"
)

// ExtensionToMIME maps asset name extensions to MIME types
var ExtensionToMIME = map[string]ContentType{
	".txt":        ContentTypeTextPlain,
	".dat":        ContentTypeTextPlain,
	".properties": ContentTypeTextProperties,
	".png":        ContentTypeImagePNG,
	".jpg":        ContentTypeImageJPEG,
	".jpeg":       ContentTypeImageJPEG,
	".gif":        ContentTypeImageGIF,
	".ogg":        ContentTypeAudioOGG,
	".wav":        ContentTypeAudioWAV,
	".mp3":        ContentTypeAudioMpeg,
	".json":       ContentTypeApplicationJson,
	".xml":        ContentTypeApplicationXML,
	".zip":        ContentTypeApplicationZip,
	".jar":        ContentTypeApplicationJar,
}

// ContentTypeOf returns the MIME type for the extension of an asset name
func ContentTypeOf(name string) ContentType {
	if mimeType, exists := ExtensionToMIME[strings.ToLower(path.Ext(name))]; exists {
		return mimeType
	}
	return ContentTypeApplicationStream
}
