package errors

import (
	"fmt"
	"strings"
)

// LookupStatusError reports a non-success HTTP status from a lookup API
func LookupStatusError(service Service, status int) *MobilityError {
	err := New(ErrorTypeNetwork, service, lookupMessage(service)).
		WithCause(fmt.Sprintf("HTTP %d", status))

	switch {
	case status == 429:
		err.WithSolutions(
			"Wait a few seconds before searching again",
			"Reduce the number of consecutive searches",
		)
	case status >= 500:
		err.WithSolutions("The service is unavailable, try again later")
	default:
		err.WithSolutions("Check your internet connection", "Retry the lookup")
	}

	return err
}

// LookupTransportError reports a transport failure talking to a lookup API
func LookupTransportError(service Service, originalErr error) *MobilityError {
	err := Wrap(ErrorTypeNetwork, service, lookupMessage(service), originalErr)

	if originalErr != nil && strings.Contains(originalErr.Error(), "timeout") {
		err.WithSolutions("The request timed out, retry in a moment")
		return err
	}

	return err.WithSolutions("Check your internet connection", "Retry the lookup")
}

// StorageBackendError reports a misconfigured durable storage backend
func StorageBackendError(backend string, originalErr error) *MobilityError {
	err := Wrap(ErrorTypeConfiguration, ServiceStorage,
		fmt.Sprintf("failed to open %s storage backend", backend), originalErr)

	switch backend {
	case "s3":
		err.WithSolutions(
			"Set storage.bucket and storage.region",
			"Verify AWS credentials with: aws sts get-caller-identity",
		)
	case "gcs":
		err.WithSolutions(
			"Set storage.bucket",
			"Run: gcloud auth application-default login",
		)
	case "azure":
		err.WithSolutions(
			"Set storage.account and storage.container",
			"Provide a SAS token in storage.sas_token",
		)
	default:
		err.WithSolutions("Use one of: local, memory, s3, gcs, azure")
	}

	return err.WithHelp("acessivel check")
}

// BackendCredentialsError reports missing or invalid document store credentials
func BackendCredentialsError(originalErr error) *MobilityError {
	return Wrap(ErrorTypeConfiguration, ServiceBackend, "document store credentials are not valid", originalErr).
		WithSolutions(
			"export AWS_PROFILE=your-profile",
			"Set backend.region in the config file",
		).
		WithHelp("acessivel check")
}

func lookupMessage(service Service) string {
	switch service {
	case ServiceViaCEP:
		return "failed to look up postal code"
	case ServiceNominatim:
		return "failed to search locations"
	default:
		return "lookup failed"
	}
}
