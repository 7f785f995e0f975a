// Package imagestore keeps the image files extracted from source documents.
//
// Images are written as PNG under a base directory, one folder per report:
//
//	<dir>/report_<id>/page_<N>_image_<idx>.png
//
// Documents whose file names carry no report id use the file stem as folder
// name instead. Paths recorded in core.ImageRef are relative to the base
// directory, so an index stays valid when the directory is moved.
//
// The stored copy may be downscaled (see WithMaxDimension); the ImageRef keeps
// the original pixel dimensions.
package imagestore
