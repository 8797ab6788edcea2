// compileinfoprint is imported for the side effect of printing the build
// description to os.Stderr before main runs.
package compileinfoprint

import (
	"os"

	"github.com/carbocation/mirnaprep/compileinfo"
)

func init() {
	compileinfo.Fprint(os.Stderr)
}
