package sdk

// StatusFromError maps a component-local error into the PLUGIN_OK /
// PLUGIN_ERROR / PLUGIN_FATAL contract every §6.2 callback returns. This is
// the Go equivalent of the original's small PluginHelpers status-conversion
// functions.
func StatusFromError(err error, fatal bool) Status {
	if err == nil {
		return PluginOK
	}
	if fatal {
		return PluginFatal
	}
	return PluginError
}

// AggregateMessageStatus implements §7's propagation policy for a clear
// message whose component enc-pkgs have mixed outcomes: any SENT wins, else
// any still-outstanding (non-failed) keeps it UNDEF, else FAILED.
func AggregateMessageStatus(statuses []PackageStatus) MessageStatus {
	sawOutstanding := false
	for _, s := range statuses {
		if s == PackageSent {
			return MsgSent
		}
		if s != PackageFailedGeneric {
			sawOutstanding = true
		}
	}
	if sawOutstanding {
		return MsgUndef
	}
	return MsgFailed
}
