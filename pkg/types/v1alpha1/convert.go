package v1alpha1

import (
	"encoding/json"
	"fmt"

	"github.com/project-copacetic/autofix/pkg/types/unversioned"
)

func ConvertV1alpha1FixFeedToUnversionedFixFeed(data []byte) (unversioned.FixFeed, error) {
	var feed FixFeed
	if err := json.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("error parsing fix feed: %w", err)
	}
	if feed.APIVersion != APIVersion {
		return nil, fmt.Errorf("unexpected apiVersion %q, want %q", feed.APIVersion, APIVersion)
	}

	out := make(unversioned.FixFeed, 0, len(feed.Actions))
	for _, a := range feed.Actions {
		action := unversioned.FixAction{
			Action: a.Action,
			Module: a.Module,
			Target: a.Target,
		}
		if action.Action == "" {
			action.Action = unversioned.ActionUpdate
		}
		for _, r := range a.Resolves {
			action.Resolves = append(action.Resolves, unversioned.Resolve(r))
		}
		out = append(out, action)
	}
	return out, nil
}
