package transcoder

import (
	"regexp"
	"strings"
)

// Pre-compiled regexes for classifying ffmpeg stderr output. Checked in
// the order of stderrRules; the first match wins. Encoder open failures end
// with a generic EINVAL line, so capacity and init precede format.
var (
	reNotFound = regexp.MustCompile(
		`No such file or directory|does not exist|Protocol not found`)

	reUnsupported = regexp.MustCompile(
		`(?i)Unknown encoder|Encoder .* not found|` +
			`codec not currently supported in container|` +
			`not supported by the bitstream filter|` +
			`Requested output format .* is not a suitable output format`)

	reFormat = regexp.MustCompile(
		`(?i)Invalid data found when processing input|moov atom not found|` +
			`could not find codec parameters|Error while decoding stream|` +
			`Unable to find a suitable output format`)

	reCapacity = regexp.MustCompile(
		`(?i)Cannot allocate memory|out of memory|OutOfMemory|` +
			`Resource temporarily unavailable|No capable devices found|` +
			`too many (open files|sessions)|OpenEncodeSessionEx failed`)

	reInit = regexp.MustCompile(
		`(?i)Error while opening encoder|Could not open encoder|` +
			`Error initializing output stream|Failed to initiali[sz]e encoder|` +
			`Generic error in an external library|exceeds the maximum`)
)

var stderrRules = []struct {
	re   *regexp.Regexp
	code Code
}{
	{reNotFound, CodeNotFound},
	{reUnsupported, CodeUnsupported},
	{reCapacity, CodeCapacity},
	{reInit, CodeInit},
	{reFormat, CodeFormat},
}

// Classify maps ffmpeg stderr output to a failure code.
func Classify(stderr string) Code {
	for _, rule := range stderrRules {
		if rule.re.MatchString(stderr) {
			return rule.code
		}
	}
	return CodeUnknown
}

// lastLine returns the last non-empty line of s, which is where ffmpeg
// prints its fatal error.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
