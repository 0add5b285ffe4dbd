package services

import (
	"context"
	"fmt"
	"mime/multipart"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// AvatarService uploads profile pictures to Cloudinary and hands back the
// hosted URL; the URL is what ends up on the user record.
type AvatarService struct {
	cld *cloudinary.Cloudinary
}

func NewAvatarService(cloudName, apiKey, apiSecret string) (*AvatarService, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Cloudinary: %w", err)
	}
	return &AvatarService{cld: cld}, nil
}

// Upload pushes the file to the avatars folder and returns its secure URL.
func (s *AvatarService) Upload(ctx context.Context, fileHeader *multipart.FileHeader) (string, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	result, err := s.cld.Upload.Upload(ctx, file, uploader.UploadParams{
		Folder:       "astrochat/avatars",
		ResourceType: "image",
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload avatar: %w", err)
	}
	return result.SecureURL, nil
}
