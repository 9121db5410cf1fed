// Package language normalizes language identifiers between the forms tools
// expect: WhisperX takes ISO 639-1, container metadata takes ISO 639-2.
package language
