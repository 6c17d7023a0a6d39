package pipe

import (
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"
)

type PipeSuite struct{}

func TestPipe(t *testing.T) {
	suite.RunTests(t, &PipeSuite{})
}

func (PipeSuite) TestWriteThenRead(t *testing.T) {
	p, err := New(false)
	expect.Nil(t, err)
	defer p.CloseRead()
	defer p.CloseWrite()

	err = p.Write([]byte("hello"))
	expect.Nil(t, err)

	data, err := p.Read()
	expect.Nil(t, err)
	expect.Equal(t, "hello", string(data))
}

func (PipeSuite) TestReadAfterWriterClosedReturnsEmpty(t *testing.T) {
	p, err := New(false)
	expect.Nil(t, err)
	defer p.CloseRead()

	err = p.CloseWrite()
	expect.Nil(t, err)

	data, err := p.Read()
	expect.Nil(t, err)
	expect.Equal(t, 0, len(data))
}

func (PipeSuite) TestWriteAfterReaderClosedFails(t *testing.T) {
	p, err := New(false)
	expect.Nil(t, err)
	defer p.CloseWrite()

	err = p.CloseRead()
	expect.Nil(t, err)

	err = p.Write([]byte("x"))
	expect.NotNil(t, err)
}

func (PipeSuite) TestDoubleCloseIsNoop(t *testing.T) {
	p, err := New(true)
	expect.Nil(t, err)

	expect.Nil(t, p.CloseRead())
	expect.Nil(t, p.CloseRead())

	expect.Nil(t, p.CloseWrite())
	expect.Nil(t, p.CloseWrite())
}
