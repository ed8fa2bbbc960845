package vfs

// DefaultSolutions returns recovery guidance for failures that carry none.
func DefaultSolutions(kind ErrorKind, backend BackendTag) []string {
	switch kind {
	case KindSecurityRestriction:
		if backend == BackendLocal {
			return []string{
				"Use the companion file service (remote backend)",
				"Make sure folder selection is triggered by a click",
				"Serve the application over HTTPS or from localhost",
			}
		}
		return []string{"Switch to the local backend"}
	case KindPermissionDenied:
		return []string{
			"Grant read/write access to the folder and select it again",
			"Check the file's permissions on the host",
		}
	case KindBackendUnreachable:
		return []string{
			"Start the companion file service (xide serve)",
			"Check the network connection and remote.base_url",
		}
	case KindInvalidHandle:
		return []string{"Select the working directory again"}
	case KindNoActiveSession:
		return []string{"Open a folder first"}
	case KindForbiddenRootWrite:
		return []string{"Choose a subdirectory instead of the file system root"}
	case KindAlreadyExists:
		return []string{"Pick a different name or delete the existing entry first"}
	case KindOperationInProgress:
		return []string{"Wait for the current folder selection to finish"}
	}
	return nil
}
