// Package quality implements the image quality policy: minimum dimensions,
// a format allow-list and a file size ceiling.
//
// A candidate is judged twice. EvaluateDeclared looks only at what the
// source declared and runs before any download. EvaluateContent looks at
// the downloaded bytes. A rejection is terminal for the candidate.
package quality
