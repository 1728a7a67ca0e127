// Package gcloud connects geco to Google Cloud: it reads the local gcloud
// configuration, builds the gcloud command lines geco runs or prints, and
// lists projects and VM instances through the Cloud Resource Manager and
// Compute Engine APIs.
package gcloud
