package providers

import "github.com/spf13/afero"

func NewFsProvider() afero.Fs {
	return afero.NewOsFs()
}
