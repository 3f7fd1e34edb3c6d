package main

import (
	"os"

	"zinga/commands"
)

// @title           Zinga Linga Data API
// @version         1.0

// @description     ## Zinga Linga Data API
// @description
// @description     Stores the Zinga Linga application document (users, learning modules, packages, purchases, settings and the admin UI's auxiliary collections) as one JSON file on disk and serves it to the admin back office and the storefront.
// @description
// @description     **Safety nets:**
// @description     *   Every write first copies the current document to `backup-<ms>.json`.
// @description     *   A save that would empty a guarded collection (by default `modules`) is rejected.
// @description     *   `backup-permanent.json` always holds the last document that had modules; a missing live document is recreated from it.
// @description     *   Send `version` with a save to be told (409) when someone else saved first.

// @license.name  MIT

// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	os.Exit(commands.Execute())
}
