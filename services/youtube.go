package services

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	youtube "google.golang.org/api/youtube/v3"

	"encore/types"
)

// youtubeResolver implements MediaResolver on the YouTube Data API v3 search
// endpoint: one best video match per query, taken unconditionally.
type youtubeResolver struct {
	svc *youtube.Service
}

// NewYouTubeResolver creates a media resolver backed by the YouTube Data API.
func NewYouTubeResolver(ctx context.Context, apiKey string) (MediaResolver, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("youtube api key is required")
	}
	svc, err := youtube.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return &youtubeResolver{svc: svc}, nil
}

func (r *youtubeResolver) Resolve(ctx context.Context, query string) (*types.MediaReference, error) {
	resp, err := r.svc.Search.List([]string{"id", "snippet"}).
		Q(query).
		MaxResults(1).
		Type("video").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("youtube search: %w", err)
	}
	if len(resp.Items) == 0 {
		return nil, ErrNoMedia
	}

	item := resp.Items[0]
	if item.Id == nil || item.Id.VideoId == "" {
		return nil, ErrNoMedia
	}

	ref := &types.MediaReference{VideoID: item.Id.VideoId}
	if item.Snippet != nil {
		ref.Title = item.Snippet.Title
		ref.Channel = item.Snippet.ChannelTitle
		ref.CoverURL = bestThumbnail(item.Snippet.Thumbnails)
	}
	return ref, nil
}

// bestThumbnail prefers the high-resolution thumbnail, matching the cover
// image the original metadata records carried.
func bestThumbnail(t *youtube.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, thumb := range []*youtube.Thumbnail{t.High, t.Medium, t.Default} {
		if thumb != nil && thumb.Url != "" {
			return thumb.Url
		}
	}
	return ""
}
