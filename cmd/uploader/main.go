//	@title			Uploader API
//	@version		1.0
//	@description	Upload files, fetch them by public id and delete them with a secret.
//
//	@host		localhost:8080
//	@BasePath	/

package main

import (
	"context"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
