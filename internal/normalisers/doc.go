// Package normalisers provides implementations of the Normaliser interface
// for the supported upload formats. Each normaliser knows how to extract
// ordered text segments from one file type:
//
//   - pdf: one segment per page with text
//   - pptx: one segment per slide with text
//   - ipynb: one segment per markdown or code cell
//   - plaintext: the whole file as one segment
//
// Normalisers are registered with the Registry at startup.
package normalisers
