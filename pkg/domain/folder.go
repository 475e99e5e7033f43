package domain

// RootFolderID is the canonical folder id every tenant's root maps to.
// It always exists and is never passed to MetadataStore.FolderExists.
const RootFolderID = "root"

// ResolveFolderID maps the client-facing root aliases ("", "root", "/")
// onto RootFolderID, passing any other folder id through unchanged.
func ResolveFolderID(raw string) string {
	switch raw {
	case "", "root", "/":
		return RootFolderID
	default:
		return raw
	}
}
